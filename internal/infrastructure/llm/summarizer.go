package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/pkg/tracer"
)

const summarizerSystemPrompt = `把给出的群聊消息总结成一份简明的中文摘要。
按讨论主题分组，每个主题一两句话，提到关键结论和未决事项。
标记为匿名的发言者统一写作"某成员"，不要出现其名字。
只输出摘要正文。`

// Summarizer 基于 ChatModel 的群聊摘要器
type Summarizer struct {
	factory *EinoFactory
}

// NewSummarizer 创建群聊摘要器
func NewSummarizer(factory *EinoFactory) *Summarizer {
	return &Summarizer{factory: factory}
}

// Summarize 生成时间窗口内的群聊摘要
// optedOut 集合里的发言者在提示词中标记为匿名
func (s *Summarizer) Summarize(ctx context.Context, group *entity.Group, messages []*entity.Message) (string, error) {
	return s.SummarizeWithOptOut(ctx, group, messages, nil)
}

// SummarizeWithOptOut 生成摘要并匿名处理退出成员
func (s *Summarizer) SummarizeWithOptOut(ctx context.Context, group *entity.Group, messages []*entity.Message, optedOut map[string]bool) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Summarizer.Summarize")
	defer span.End()

	if len(messages) == 0 {
		return "这段时间群里没有新消息。", nil
	}

	chatModel, err := s.factory.Default(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "群: %s\n消息(%d 条):\n", group.Name, len(messages))
	// 消息按时间倒序传入，正序拼接
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		name := m.PushName
		if name == "" {
			name = m.SenderJID
		}
		if optedOut[m.SenderJID] {
			name = "[匿名]"
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.Timestamp.Format("01-02 15:04"), name, m.Text)
	}

	out, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(summarizerSystemPrompt),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("summary call failed: %w", err)
	}

	return strings.TrimSpace(out.Content), nil
}
