// Package membership 实现群成员校验
package membership

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/internal/domain/repository"
	"groupchat-ai-bot/pkg/logger"
	"groupchat-ai-bot/pkg/metrics"
	"groupchat-ai-bot/pkg/tracer"
)

// RosterClient 即时花名册查询接口，由消息平台网关实现
type RosterClient interface {
	// ListParticipants 返回群当前全部参与者的 JID
	ListParticipants(ctx context.Context, groupJID string) ([]string, error)
}

// Gate 两级成员校验门
// 本地成员表是懒填充的：只有发过言或被全量同步过的成员才有记录，
// 因此本地未命中不等于非成员，需要回源查询即时花名册。
// 回源失败时按非成员处理，宁可误拒也不能把摘要泄露给群外用户。
type Gate struct {
	members repository.MemberRepository
	roster  RosterClient
	sf      singleflight.Group
}

// NewGate 创建成员校验门
func NewGate(members repository.MemberRepository, roster RosterClient) *Gate {
	return &Gate{
		members: members,
		roster:  roster,
	}
}

// IsMember 判断发送者是否是群成员
// 快路径命中本地记录时不发起任何外部调用
func (g *Gate) IsMember(ctx context.Context, senderJID, groupJID string) bool {
	ctx, span := tracer.Start(ctx, "membership.Gate.IsMember")
	defer span.End()

	log := logger.FromContext(ctx)

	row, err := g.members.Get(ctx, groupJID, senderJID)
	if err != nil {
		log.Warn("membership local lookup failed, falling back to roster",
			"group_jid", groupJID, "sender_jid", senderJID, "error", err)
	} else if row != nil && row.IsActive() {
		metrics.MembershipChecksTotal.WithLabelValues("local", "member").Inc()
		return true
	}

	// 同一 (群, 发送者) 的并发回源合并为一次远程调用
	key := groupJID + "|" + senderJID
	v, err, _ := g.sf.Do(key, func() (interface{}, error) {
		return g.checkLive(ctx, senderJID, groupJID)
	})
	if err != nil {
		// 失败关闭：花名册不可用时拒绝访问
		metrics.MembershipChecksTotal.WithLabelValues("roster", "error").Inc()
		log.Warn("roster lookup failed, denying access",
			"group_jid", groupJID, "sender_jid", senderJID, "error", err)
		return false
	}

	found := v.(bool)
	if found {
		metrics.MembershipChecksTotal.WithLabelValues("roster", "member").Inc()
	} else {
		metrics.MembershipChecksTotal.WithLabelValues("roster", "non_member").Inc()
	}
	return found
}

// checkLive 查询即时花名册，命中后回写本地记录让后续校验走快路径
func (g *Gate) checkLive(ctx context.Context, senderJID, groupJID string) (bool, error) {
	participants, err := g.roster.ListParticipants(ctx, groupJID)
	if err != nil {
		return false, err
	}

	for _, jid := range participants {
		if jid != senderJID {
			continue
		}
		member := &entity.GroupMember{
			GroupJID:  groupJID,
			SenderJID: senderJID,
			JoinedAt:  time.Now(),
		}
		if err := g.members.Upsert(ctx, member); err != nil {
			// 回写失败不影响本次放行，下次会再走一遍回源
			logger.FromContext(ctx).Warn("membership upsert failed",
				"group_jid", groupJID, "sender_jid", senderJID, "error", err)
		}
		return true, nil
	}
	return false, nil
}
