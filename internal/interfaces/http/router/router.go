// Package router 提供 HTTP 路由配置
package router

import (
	"groupchat-ai-bot/internal/config"
	"groupchat-ai-bot/internal/interfaces/http/handler"
	"groupchat-ai-bot/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由所需的处理器集合
type Handlers struct {
	Health  *handler.HealthHandler
	Webhook *handler.WebhookHandler
	Auth    *handler.AuthHandler
	Group   *handler.GroupHandler
	Job     *handler.JobHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// CORS 中间件
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	// 系统端点
	r.engine.GET("/health", r.handlers.Health.Health)
	r.engine.GET("/ready", r.handlers.Health.Ready)
	r.engine.GET("/live", r.handlers.Health.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// API v1 路由组
	v1 := r.engine.Group("/v1")
	{
		// 网关回调：入口本身做 IP 级限流，按发送者/群的
		// 滑动窗口限流在路由状态机里做
		webhook := v1.Group("/webhook")
		webhook.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Enabled:           r.limiter != nil,
			RequestsPerSecond: 200,
		}, r.limiter))
		{
			webhook.POST("/messages", r.handlers.Webhook.HandleMessage)
		}

		// 管理后台登录
		v1.POST("/auth/login", r.handlers.Auth.Login)

		// 管理接口，需要 JWT
		admin := v1.Group("/admin")
		admin.Use(middleware.Auth(middleware.AuthConfig{
			Enabled: r.cfg.Security.JWT.Enabled,
			Secret:  r.cfg.Security.JWT.Secret,
			Issuer:  r.cfg.Security.JWT.Issuer,
		}))
		{
			groups := admin.Group("/groups")
			{
				groups.GET("", r.handlers.Group.List)
				groups.PUT("/:jid/managed", r.handlers.Group.SetManaged)
				groups.PUT("/:jid/websearch", r.handlers.Group.SetWebSearch)
				groups.POST("/:jid/roster/sync", r.handlers.Group.SyncRoster)
				groups.PUT("/:jid/members/optout", r.handlers.Group.SetOptOut)
			}

			jobs := admin.Group("/jobs")
			{
				jobs.POST("/summaries", r.handlers.Job.EnqueueSummary)
				jobs.POST("/topic-ingest", r.handlers.Job.EnqueueTopicIngest)
			}
		}
	}
}
