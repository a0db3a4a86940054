package repository

import (
	"context"

	"groupchat-ai-bot/internal/domain/entity"
)

// TopicRepository 知识库话题仓储接口
type TopicRepository interface {
	// SaveBatch 批量保存话题
	SaveBatch(ctx context.Context, topics []*entity.KBTopic) error
	// GetByIDs 按 ID 批量查询话题
	GetByIDs(ctx context.Context, ids []string) ([]*entity.KBTopic, error)
	// CountByGroup 统计群内话题数
	CountByGroup(ctx context.Context, groupJID string) (int64, error)
}
