package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"groupchat-ai-bot/internal/domain/entity"
)

// MessageRepository 消息仓储实现
type MessageRepository struct {
	client *Client
}

// NewMessageRepository 创建消息仓储
func NewMessageRepository(client *Client) *MessageRepository {
	return &MessageRepository{client: client}
}

// Save 保存消息，webhook 重投时幂等
func (r *MessageRepository) Save(ctx context.Context, msg *entity.Message) error {
	ctx, span := tracer.Start(ctx, "postgres.MessageRepository.Save")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(msg).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListByWindow 按时间区间倒序列出群消息
func (r *MessageRepository) ListByWindow(ctx context.Context, groupJID string, since, until time.Time, limit int) ([]*entity.Message, error) {
	ctx, span := tracer.Start(ctx, "postgres.MessageRepository.ListByWindow")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("group_jid = ?", groupJID)
	if !since.IsZero() {
		query = query.Where("timestamp >= ?", since)
	}
	if !until.IsZero() {
		query = query.Where("timestamp <= ?", until)
	}
	query = query.Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var msgs []*entity.Message
	if err := query.Find(&msgs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// CountSince 统计群在某时刻之后的消息数
func (r *MessageRepository) CountSince(ctx context.Context, groupJID string, since time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.MessageRepository.CountSince")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	err := db.Model(&entity.Message{}).
		Where("group_jid = ? AND timestamp > ?", groupJID, since).
		Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
