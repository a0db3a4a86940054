package repository

import (
	"context"
	"time"

	"groupchat-ai-bot/internal/domain/entity"
)

// MessageRepository 消息仓储接口
type MessageRepository interface {
	// Save 保存消息
	Save(ctx context.Context, msg *entity.Message) error
	// ListByWindow 按时间区间倒序列出群消息，limit 为 0 表示不限条数
	ListByWindow(ctx context.Context, groupJID string, since, until time.Time, limit int) ([]*entity.Message, error)
	// CountSince 统计群在某时刻之后的消息数
	CountSince(ctx context.Context, groupJID string, since time.Time) (int64, error)
}
