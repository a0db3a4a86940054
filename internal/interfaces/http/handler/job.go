package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"groupchat-ai-bot/internal/application/routing"
	"groupchat-ai-bot/internal/domain/repository"
	"groupchat-ai-bot/internal/infrastructure/messaging"
	"groupchat-ai-bot/internal/interfaces/http/dto"
	"groupchat-ai-bot/pkg/logger"
)

// JobHandler 异步任务触发处理器
type JobHandler struct {
	producer *messaging.Producer
	groups   repository.GroupRepository
	resolver *routing.TimeWindowResolver
}

// NewJobHandler 创建异步任务触发处理器
func NewJobHandler(producer *messaging.Producer, groups repository.GroupRepository) *JobHandler {
	return &JobHandler{
		producer: producer,
		groups:   groups,
		resolver: routing.NewTimeWindowResolver(),
	}
}

// EnqueueSummary 手动触发群摘要任务
func (h *JobHandler) EnqueueSummary(c *gin.Context) {
	var req dto.SummaryJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	ctx := c.Request.Context()

	group, err := h.groups.GetByJID(ctx, req.GroupJID)
	if err != nil {
		logger.Error(ctx, "查询群组失败", err, "group_jid", req.GroupJID)
		dto.InternalError(c, "failed to load group")
		return
	}
	if !group.IsManaged() {
		dto.NotFound(c, "group is not managed")
		return
	}

	// 时间窗口与在群消息路径同一套解析规则，同样收紧上限
	window := h.resolver.Resolve(time.Duration(req.Hours * float64(time.Hour)))

	job := &messaging.SummaryJobMessage{
		JobID:     uuid.NewString(),
		GroupJID:  req.GroupJID,
		Since:     window.Start,
		Until:     window.End,
		TargetJID: req.TargetJID,
	}
	streamID, err := h.producer.PublishSummaryJob(ctx, job)
	if err != nil {
		logger.Error(ctx, "投递摘要任务失败", err, "group_jid", req.GroupJID)
		dto.InternalError(c, "failed to enqueue summary job")
		return
	}

	dto.Accepted(c, dto.SummaryJobResponse{
		JobID:    job.JobID,
		StreamID: streamID,
	})
}

// EnqueueTopicIngest 手动触发话题切分入库
func (h *JobHandler) EnqueueTopicIngest(c *gin.Context) {
	var req dto.TopicIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	ctx := c.Request.Context()

	group, err := h.groups.GetByJID(ctx, req.GroupJID)
	if err != nil {
		logger.Error(ctx, "查询群组失败", err, "group_jid", req.GroupJID)
		dto.InternalError(c, "failed to load group")
		return
	}
	if !group.IsManaged() {
		dto.NotFound(c, "group is not managed")
		return
	}

	until := req.Until
	if until.IsZero() {
		until = time.Now()
	}
	if !until.After(req.Since) {
		dto.BadRequest(c, "until must be after since")
		return
	}

	streamID, err := h.producer.PublishTopicIngest(ctx, &messaging.TopicIngestMessage{
		GroupJID: req.GroupJID,
		Since:    req.Since,
		Until:    until,
	})
	if err != nil {
		logger.Error(ctx, "投递话题入库任务失败", err, "group_jid", req.GroupJID)
		dto.InternalError(c, "failed to enqueue ingest job")
		return
	}

	dto.Accepted(c, dto.TopicIngestResponse{StreamID: streamID})
}
