// Package repository 定义领域仓储接口
package repository

import (
	"context"

	"groupchat-ai-bot/internal/domain/entity"
)

// GroupRepository 群组仓储接口
type GroupRepository interface {
	// Upsert 创建或更新群组
	Upsert(ctx context.Context, group *entity.Group) error
	// GetByJID 按 JID 查询群组，不存在时返回 nil
	GetByJID(ctx context.Context, jid string) (*entity.Group, error)
	// ListManaged 列出所有托管群
	ListManaged(ctx context.Context) ([]*entity.Group, error)
	// SetManaged 设置群的托管状态
	SetManaged(ctx context.Context, jid string, managed bool) error
	// SetWebSearch 设置群的网页搜索兜底开关
	SetWebSearch(ctx context.Context, jid string, enabled bool) error
	// TouchSummarySync 更新群的最近摘要同步时间
	TouchSummarySync(ctx context.Context, jid string) error
}
