package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"groupchat-ai-bot/internal/domain/entity"
)

// TopicRepository 知识库话题仓储实现
type TopicRepository struct {
	client *Client
}

// NewTopicRepository 创建话题仓储
func NewTopicRepository(client *Client) *TopicRepository {
	return &TopicRepository{client: client}
}

// SaveBatch 批量保存话题
func (r *TopicRepository) SaveBatch(ctx context.Context, topics []*entity.KBTopic) error {
	ctx, span := tracer.Start(ctx, "postgres.TopicRepository.SaveBatch")
	defer span.End()

	if len(topics) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).CreateInBatches(topics, 100).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save topics: %w", err)
	}
	return nil
}

// GetByIDs 按 ID 批量查询话题
func (r *TopicRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.KBTopic, error) {
	ctx, span := tracer.Start(ctx, "postgres.TopicRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var topics []*entity.KBTopic
	if err := db.Where("id IN ?", ids).Find(&topics).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get topics: %w", err)
	}
	return topics, nil
}

// CountByGroup 统计群内话题数
func (r *TopicRepository) CountByGroup(ctx context.Context, groupJID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TopicRepository.CountByGroup")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	err := db.Model(&entity.KBTopic{}).Where("group_jid = ?", groupJID).Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count topics: %w", err)
	}
	return count, nil
}
