// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"groupchat-ai-bot/internal/domain/entity"
)

// GroupRepository 群组仓储实现
type GroupRepository struct {
	client *Client
}

// NewGroupRepository 创建群组仓储
func NewGroupRepository(client *Client) *GroupRepository {
	return &GroupRepository{client: client}
}

// Upsert 创建或更新群组
func (r *GroupRepository) Upsert(ctx context.Context, group *entity.Group) error {
	ctx, span := tracer.Start(ctx, "postgres.GroupRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "jid"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "community", "owner_jid", "updated_at"}),
	}).Create(group).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert group: %w", err)
	}
	return nil
}

// GetByJID 根据 JID 获取群组
func (r *GroupRepository) GetByJID(ctx context.Context, jid string) (*entity.Group, error) {
	ctx, span := tracer.Start(ctx, "postgres.GroupRepository.GetByJID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var group entity.Group
	if err := db.First(&group, "jid = ?", jid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

// ListManaged 列出所有托管群
func (r *GroupRepository) ListManaged(ctx context.Context) ([]*entity.Group, error) {
	ctx, span := tracer.Start(ctx, "postgres.GroupRepository.ListManaged")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var groups []*entity.Group
	if err := db.Where("managed = ?", true).Order("name").Find(&groups).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list managed groups: %w", err)
	}
	return groups, nil
}

// SetManaged 设置群的托管状态
func (r *GroupRepository) SetManaged(ctx context.Context, jid string, managed bool) error {
	ctx, span := tracer.Start(ctx, "postgres.GroupRepository.SetManaged")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Group{}).Where("jid = ?", jid).
		Updates(map[string]interface{}{"managed": managed, "updated_at": time.Now()})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to set managed flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetWebSearch 设置群的网页搜索兜底开关
func (r *GroupRepository) SetWebSearch(ctx context.Context, jid string, enabled bool) error {
	ctx, span := tracer.Start(ctx, "postgres.GroupRepository.SetWebSearch")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Group{}).Where("jid = ?", jid).
		Updates(map[string]interface{}{"enable_web_search": enabled, "updated_at": time.Now()})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to set web search flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchSummarySync 更新群的最近摘要同步时间
func (r *GroupRepository) TouchSummarySync(ctx context.Context, jid string) error {
	ctx, span := tracer.Start(ctx, "postgres.GroupRepository.TouchSummarySync")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Model(&entity.Group{}).Where("jid = ?", jid).
		Update("last_summary_sync", time.Now()).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to touch summary sync: %w", err)
	}
	return nil
}
