package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"groupchat-ai-bot/internal/application/routing"
	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/internal/domain/repository"
	"groupchat-ai-bot/internal/interfaces/http/dto"
	"groupchat-ai-bot/pkg/logger"
)

// ReplySender 回复投递接口
type ReplySender interface {
	SendText(ctx context.Context, targetJID, text string) error
}

// LinkInspector 群邀请链接巡查接口
type LinkInspector interface {
	Inspect(ctx context.Context, msg *entity.Message) error
}

// WebhookHandler 网关消息回调处理器
type WebhookHandler struct {
	router       *routing.Router
	messages     repository.MessageRepository
	sender       ReplySender
	linkWatch    LinkInspector
	botJID       string
	routeTimeout time.Duration
}

// NewWebhookHandler 创建网关消息回调处理器
func NewWebhookHandler(router *routing.Router, messages repository.MessageRepository, sender ReplySender, linkWatch LinkInspector, botJID string, routeTimeout time.Duration) *WebhookHandler {
	if routeTimeout <= 0 {
		routeTimeout = 60 * time.Second
	}
	return &WebhookHandler{
		router:       router,
		messages:     messages,
		sender:       sender,
		linkWatch:    linkWatch,
		botJID:       botJID,
		routeTimeout: routeTimeout,
	}
}

// HandleMessage 处理网关推送的群消息
//
// 所有消息都会落库作为后续摘要与话题切分的语料；
// 只有 @ 机器人的消息才进入路由状态机。
func (h *WebhookHandler) HandleMessage(c *gin.Context) {
	var req dto.WebhookMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid message payload: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	// 机器人自己发的消息不处理，避免回环
	if req.SenderJID == h.botJID {
		dto.NoContent(c)
		return
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	// 先落库，再路由：限流拒绝的消息同样属于群聊语料
	msg := &entity.Message{
		ID:        req.MessageID,
		GroupJID:  req.GroupJID,
		SenderJID: req.SenderJID,
		PushName:  req.PushName,
		Text:      req.Text,
		QuotedID:  req.QuotedID,
		Timestamp: ts,
	}
	if err := h.messages.Save(ctx, msg); err != nil {
		logger.Error(ctx, "保存群消息失败", err, "message_id", req.MessageID)
		dto.InternalError(c, "failed to persist message")
		return
	}

	// 链接巡查只产生告警，失败不影响消息处理
	if h.linkWatch != nil {
		if err := h.linkWatch.Inspect(ctx, msg); err != nil {
			log.Warn("群邀请链接巡查失败", "message_id", req.MessageID, "error", err)
		}
	}

	if !mentionsBot(req.Text, h.botJID) {
		dto.Success(c, dto.WebhookMessageResponse{
			MessageID: req.MessageID,
			Outcome:   "stored",
		})
		return
	}

	routeCtx, cancel := context.WithTimeout(ctx, h.routeTimeout)
	defer cancel()

	decision := h.router.Route(routeCtx, &routing.InboundMessage{
		ID:        req.MessageID,
		GroupJID:  req.GroupJID,
		SenderJID: req.SenderJID,
		PushName:  req.PushName,
		Text:      stripBotMention(req.Text, h.botJID),
		Timestamp: ts,
	})

	replied := false
	if decision.Reply != "" {
		if err := h.sender.SendText(ctx, req.GroupJID, decision.Reply); err != nil {
			logger.Error(ctx, "回复投递失败", err, "message_id", req.MessageID)
		} else {
			replied = true
		}
	}

	if decision.Err != nil {
		log.Warn("消息路由以失败终态结束",
			"message_id", req.MessageID,
			"outcome", string(decision.Outcome),
			"error", decision.Err.Error(),
		)
	}

	dto.Success(c, dto.WebhookMessageResponse{
		MessageID: req.MessageID,
		Outcome:   string(decision.Outcome),
		Replied:   replied,
	})
}
