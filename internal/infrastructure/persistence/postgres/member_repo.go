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

// MemberRepository 群成员仓储实现
type MemberRepository struct {
	client *Client
}

// NewMemberRepository 创建群成员仓储
func NewMemberRepository(client *Client) *MemberRepository {
	return &MemberRepository{client: client}
}

// Upsert 创建或更新成员记录
// 重新入群时清除离群标记
func (r *MemberRepository) Upsert(ctx context.Context, member *entity.GroupMember) error {
	ctx, span := tracer.Start(ctx, "postgres.MemberRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_jid"}, {Name: "sender_jid"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"push_name":  member.PushName,
			"left_at":    nil,
			"updated_at": time.Now(),
		}),
	}).Create(member).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// Get 查询成员记录
func (r *MemberRepository) Get(ctx context.Context, groupJID, senderJID string) (*entity.GroupMember, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemberRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var member entity.GroupMember
	err := db.First(&member, "group_jid = ? AND sender_jid = ?", groupJID, senderJID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &member, nil
}

// ListByGroup 列出群内全部在群成员
func (r *MemberRepository) ListByGroup(ctx context.Context, groupJID string) ([]*entity.GroupMember, error) {
	ctx, span := tracer.Start(ctx, "postgres.MemberRepository.ListByGroup")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var members []*entity.GroupMember
	err := db.Where("group_jid = ? AND left_at IS NULL", groupJID).Find(&members).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// ReplaceRoster 用给定名单整体替换群成员
// 名单内成员逐条 upsert，名单外的在群成员标记离群
func (r *MemberRepository) ReplaceRoster(ctx context.Context, groupJID string, members []*entity.GroupMember) error {
	ctx, span := tracer.Start(ctx, "postgres.MemberRepository.ReplaceRoster")
	defer span.End()

	db := getDB(ctx, r.client.db)
	return db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		jids := make([]string, 0, len(members))
		for _, m := range members {
			m.GroupJID = groupJID
			jids = append(jids, m.SenderJID)
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "group_jid"}, {Name: "sender_jid"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"push_name":  m.PushName,
					"is_admin":   m.IsAdmin,
					"left_at":    nil,
					"updated_at": now,
				}),
			}).Create(m).Error
			if err != nil {
				return fmt.Errorf("failed to upsert roster member: %w", err)
			}
		}

		query := tx.Model(&entity.GroupMember{}).
			Where("group_jid = ? AND left_at IS NULL", groupJID)
		if len(jids) > 0 {
			query = query.Where("sender_jid NOT IN ?", jids)
		}
		if err := query.Updates(map[string]interface{}{"left_at": now, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("failed to mark departed members: %w", err)
		}
		return nil
	})
}

// SetOptedOut 设置成员的摘要匿名偏好
func (r *MemberRepository) SetOptedOut(ctx context.Context, groupJID, senderJID string, optedOut bool) error {
	ctx, span := tracer.Start(ctx, "postgres.MemberRepository.SetOptedOut")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.GroupMember{}).
		Where("group_jid = ? AND sender_jid = ?", groupJID, senderJID).
		Updates(map[string]interface{}{"opted_out": optedOut, "updated_at": time.Now()})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to set opt-out: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
