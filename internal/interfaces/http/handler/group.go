package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/internal/domain/repository"
	"groupchat-ai-bot/internal/infrastructure/whatsapp"
	"groupchat-ai-bot/internal/interfaces/http/dto"
	"groupchat-ai-bot/pkg/logger"
)

// TxRunner 把多个仓储写操作合并进一个事务
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// GroupDirectory 群目录读取接口
// 列表展示允许读缓存，同步后通过 Invalidate 让缓存失效
type GroupDirectory interface {
	ListGroups(ctx context.Context) ([]whatsapp.GroupInfo, error)
	Invalidate(ctx context.Context) error
}

// GroupHandler 群组管理处理器
type GroupHandler struct {
	groups    repository.GroupRepository
	members   repository.MemberRepository
	gateway   *whatsapp.Client
	directory GroupDirectory
	tx        TxRunner
}

// NewGroupHandler 创建群组管理处理器
func NewGroupHandler(groups repository.GroupRepository, members repository.MemberRepository, gateway *whatsapp.Client, directory GroupDirectory, tx TxRunner) *GroupHandler {
	return &GroupHandler{
		groups:    groups,
		members:   members,
		gateway:   gateway,
		directory: directory,
		tx:        tx,
	}
}

// List 列出机器人所在的全部群，并带上本地托管状态
func (h *GroupHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	infos, err := h.directory.ListGroups(ctx)
	if err != nil {
		logger.Error(ctx, "拉取群列表失败", err)
		dto.ServiceUnavailable(c, "gateway unavailable")
		return
	}

	views := make([]dto.GroupView, 0, len(infos))
	for _, info := range infos {
		view := dto.GroupView{
			JID:      info.JID,
			Name:     info.Name,
			OwnerJID: info.OwnerJID,
		}
		if g, err := h.groups.GetByJID(ctx, info.JID); err == nil && g != nil {
			view.Managed = g.Managed
			view.EnableWebSearch = g.EnableWebSearch
			view.Community = g.Community
			if !g.LastSummarySync.IsZero() {
				ts := g.LastSummarySync
				view.LastSummarySync = &ts
			}
		}
		views = append(views, view)
	}

	dto.Success(c, views)
}

// SetManaged 设置群的托管状态
func (h *GroupHandler) SetManaged(c *gin.Context) {
	jid := c.Param("jid")

	var req dto.GroupManagedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	ctx := c.Request.Context()

	if err := h.groups.SetManaged(ctx, jid, *req.Managed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 群还没同步过，先从网关拉一份再写托管状态
			if syncErr := h.syncGroup(c, jid); syncErr != nil {
				return
			}
			if err := h.groups.SetManaged(ctx, jid, *req.Managed); err != nil {
				logger.Error(ctx, "设置托管状态失败", err, "group_jid", jid)
				dto.InternalError(c, "failed to update group")
				return
			}
		} else {
			logger.Error(ctx, "设置托管状态失败", err, "group_jid", jid)
			dto.InternalError(c, "failed to update group")
			return
		}
	}

	dto.Success(c, gin.H{"jid": jid, "managed": *req.Managed})
}

// SetWebSearch 设置群的网页搜索兜底开关
// 开启后语料无命中的提问会转网页搜索作答
func (h *GroupHandler) SetWebSearch(c *gin.Context) {
	jid := c.Param("jid")

	var req dto.GroupWebSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	ctx := c.Request.Context()

	if err := h.groups.SetWebSearch(ctx, jid, *req.Enabled); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if syncErr := h.syncGroup(c, jid); syncErr != nil {
				return
			}
			if err := h.groups.SetWebSearch(ctx, jid, *req.Enabled); err != nil {
				logger.Error(ctx, "设置网页搜索开关失败", err, "group_jid", jid)
				dto.InternalError(c, "failed to update group")
				return
			}
		} else {
			logger.Error(ctx, "设置网页搜索开关失败", err, "group_jid", jid)
			dto.InternalError(c, "failed to update group")
			return
		}
	}

	dto.Success(c, gin.H{"jid": jid, "enable_web_search": *req.Enabled})
}

// SyncRoster 从网关同步群信息与成员花名册
func (h *GroupHandler) SyncRoster(c *gin.Context) {
	jid := c.Param("jid")

	if err := h.syncGroup(c, jid); err != nil {
		return
	}

	ctx := c.Request.Context()
	members, err := h.members.ListByGroup(ctx, jid)
	if err != nil {
		logger.Error(ctx, "读取成员列表失败", err, "group_jid", jid)
		dto.InternalError(c, "failed to list members")
		return
	}

	dto.Success(c, dto.RosterSyncResponse{
		GroupJID: jid,
		Members:  len(members),
	})
}

// SetOptOut 设置成员的摘要匿名偏好
func (h *GroupHandler) SetOptOut(c *gin.Context) {
	jid := c.Param("jid")

	var req dto.MemberOptOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.members.SetOptedOut(ctx, jid, req.SenderJID, *req.OptedOut); err != nil {
		logger.Error(ctx, "设置匿名偏好失败", err, "group_jid", jid, "sender_jid", req.SenderJID)
		dto.InternalError(c, "failed to update member")
		return
	}

	dto.NoContent(c)
}

// syncGroup 拉取群信息并整体替换成员花名册，失败时已写好响应
func (h *GroupHandler) syncGroup(c *gin.Context, jid string) error {
	ctx := c.Request.Context()

	info, err := h.gateway.GetGroup(ctx, jid)
	if err != nil {
		logger.Error(ctx, "拉取群信息失败", err, "group_jid", jid)
		dto.ServiceUnavailable(c, "gateway unavailable")
		return err
	}

	// 群信息和花名册要么一起落库要么都不落
	err = h.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := h.groups.Upsert(txCtx, &entity.Group{
			JID:      info.JID,
			Name:     info.Name,
			OwnerJID: info.OwnerJID,
		}); err != nil {
			return err
		}

		now := time.Now()
		roster := make([]*entity.GroupMember, 0, len(info.Participants))
		for _, p := range info.Participants {
			roster = append(roster, &entity.GroupMember{
				GroupJID:  jid,
				SenderJID: p.JID,
				PushName:  p.PushName,
				IsAdmin:   p.IsAdmin,
				JoinedAt:  now,
			})
		}
		return h.members.ReplaceRoster(txCtx, jid, roster)
	})
	if err != nil {
		logger.Error(ctx, "同步群信息失败", err, "group_jid", jid)
		dto.InternalError(c, "failed to sync group")
		return err
	}

	if err := h.directory.Invalidate(ctx); err != nil {
		// 缓存失效失败不影响同步结果，最多延迟一个 TTL 周期
		logger.FromContext(ctx).Warn("群目录缓存失效失败", "error", err)
	}

	return nil
}
