package handler

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"groupchat-ai-bot/internal/config"
	"groupchat-ai-bot/internal/interfaces/http/dto"
	"groupchat-ai-bot/pkg/auth"
	"groupchat-ai-bot/pkg/logger"
)

// AuthHandler 管理后台登录处理器
type AuthHandler struct {
	cfg        *config.SecurityConfig
	jwtManager *auth.JWTManager
}

// NewAuthHandler 创建管理后台登录处理器
func NewAuthHandler(cfg *config.SecurityConfig) *AuthHandler {
	return &AuthHandler{
		cfg:        cfg,
		jwtManager: auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer),
	}
}

// Login 管理后台登录，签发 JWT
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	// 未配置密码时禁用登录，避免空口令放行
	if h.cfg.Admin.Password == "" {
		dto.Unauthorized(c, "admin login disabled")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.Admin.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Admin.Password)) == 1
	if !userOK || !passOK {
		dto.Unauthorized(c, "invalid credentials")
		return
	}

	token, err := h.jwtManager.GenerateToken(req.Username, "admin", h.cfg.JWT.Expiration)
	if err != nil {
		logger.Error(c.Request.Context(), "签发 Token 失败", err)
		dto.InternalError(c, "failed to issue token")
		return
	}

	dto.Success(c, dto.LoginResponse{
		Token:     token,
		ExpiresIn: int64(h.cfg.JWT.Expiration.Seconds()),
	})
}
