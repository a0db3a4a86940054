package repository

import (
	"context"

	"groupchat-ai-bot/internal/domain/entity"
)

// MemberRepository 群成员仓储接口
type MemberRepository interface {
	// Upsert 创建或更新成员记录
	Upsert(ctx context.Context, member *entity.GroupMember) error
	// Get 查询指定群内指定发送者的成员记录，不存在时返回 nil
	Get(ctx context.Context, groupJID, senderJID string) (*entity.GroupMember, error)
	// ListByGroup 列出群内全部在群成员
	ListByGroup(ctx context.Context, groupJID string) ([]*entity.GroupMember, error)
	// ReplaceRoster 用给定名单整体替换群成员，缺席者标记离群
	ReplaceRoster(ctx context.Context, groupJID string, members []*entity.GroupMember) error
	// SetOptedOut 设置成员的摘要匿名偏好
	SetOptedOut(ctx context.Context, groupJID, senderJID string, optedOut bool) error
}
