// Package moderation 实现群内容巡查
package moderation

import (
	"context"
	"fmt"
	"strings"

	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/internal/domain/repository"
	"groupchat-ai-bot/pkg/logger"
	"groupchat-ai-bot/pkg/metrics"
	"groupchat-ai-bot/pkg/tracer"
)

// Verdict 垃圾链接评估结果
type Verdict struct {
	// Score 疑似垃圾程度，1 到 5
	Score int
	// Explanation 简短判断依据
	Explanation string
}

// SpamDetector 垃圾链接评估协作方
type SpamDetector interface {
	Assess(ctx context.Context, groupName, senderJID, text string) (*Verdict, error)
}

// Sender 告警投递接口
type Sender interface {
	SendText(ctx context.Context, targetJID, text string) error
}

// LinkWatch 群邀请链接巡查
// 托管群里出现群邀请链接时评估垃圾程度，并在群内 @ 群主告警。
// 巡查只产生告警，不改变消息的落库与路由
type LinkWatch struct {
	groups   repository.GroupRepository
	detector SpamDetector
	sender   Sender
}

// NewLinkWatch 创建链接巡查器
func NewLinkWatch(groups repository.GroupRepository, detector SpamDetector, sender Sender) *LinkWatch {
	return &LinkWatch{
		groups:   groups,
		detector: detector,
		sender:   sender,
	}
}

// ContainsGroupInvite 判断文本里是否出现群邀请链接
func ContainsGroupInvite(text string) bool {
	return strings.Contains(strings.ToLower(text), "chat.whatsapp.com/")
}

// Inspect 巡查一条入站消息
// 仅对开启告警的托管群生效，需要群主 JID 才能投递告警
func (w *LinkWatch) Inspect(ctx context.Context, msg *entity.Message) error {
	if !ContainsGroupInvite(msg.Text) {
		return nil
	}

	ctx, span := tracer.Start(ctx, "moderation.LinkWatch.Inspect")
	defer span.End()

	group, err := w.groups.GetByJID(ctx, msg.GroupJID)
	if err != nil {
		return err
	}
	if !group.IsManaged() || !group.Notify {
		return nil
	}
	if group.OwnerJID == "" {
		logger.FromContext(ctx).Warn("链接告警缺少群主 JID，跳过",
			"group_jid", msg.GroupJID)
		return nil
	}

	verdict, err := w.detector.Assess(ctx, group.Name, msg.SenderJID, msg.Text)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("spam assessment failed: %w", err)
	}

	alert := fmt.Sprintf(
		"@%s 群里有人分享了群邀请链接，可能是垃圾信息，请核实并及时清理。\n\n疑似垃圾程度: *%d*（1 不是垃圾 - 5 是垃圾）\n判断依据: %s",
		jidUser(group.OwnerJID), verdict.Score, verdict.Explanation,
	)
	if err := w.sender.SendText(ctx, msg.GroupJID, alert); err != nil {
		span.RecordError(err)
		return fmt.Errorf("spam alert delivery failed: %w", err)
	}

	metrics.LinkSpamAlertsTotal.Inc()
	logger.FromContext(ctx).Info("群邀请链接告警已发送",
		"group_jid", msg.GroupJID, "sender_jid", msg.SenderJID, "score", verdict.Score)
	return nil
}

// jidUser 取 JID 的用户名部分，用于 @ 提及
func jidUser(jid string) string {
	if i := strings.IndexByte(jid, '@'); i > 0 {
		return jid[:i]
	}
	return jid
}
