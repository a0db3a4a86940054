package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"groupchat-ai-bot/internal/application/ingest"
	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/pkg/tracer"
)

const splitterSystemPrompt = `把给出的群聊消息切分成若干个独立话题。
每个话题给出主题(subject)、两三句话的讨论总结(summary)、
参与者名单(speakers)、起止消息 ID(start_id/end_id)。
跳过闲聊和无信息量的内容。只输出 JSON 数组:
[{"subject":"...","summary":"...","speakers":["..."],"start_id":"...","end_id":"..."}]`

// TopicSplitter 基于 ChatModel 的话题蒸馏器
type TopicSplitter struct {
	factory *EinoFactory
}

// NewTopicSplitter 创建话题蒸馏器
func NewTopicSplitter(factory *EinoFactory) *TopicSplitter {
	return &TopicSplitter{factory: factory}
}

type splitTopic struct {
	Subject  string   `json:"subject"`
	Summary  string   `json:"summary"`
	Speakers []string `json:"speakers"`
	StartID  string   `json:"start_id"`
	EndID    string   `json:"end_id"`
}

// Split 把一段群聊历史蒸馏成话题列表
func (s *TopicSplitter) Split(ctx context.Context, messages []*entity.Message) ([]ingest.TopicInput, error) {
	ctx, span := tracer.Start(ctx, "llm.TopicSplitter.Split")
	defer span.End()

	if len(messages) == 0 {
		return nil, nil
	}

	chatModel, err := s.factory.Default(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*entity.Message, len(messages))
	var sb strings.Builder
	// 消息按时间倒序传入，正序拼接
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		byID[m.ID] = m
		fmt.Fprintf(&sb, "[id=%s] [%s] %s: %s\n",
			m.ID, m.Timestamp.Format(time.RFC3339), m.PushName, m.Text)
	}

	out, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(splitterSystemPrompt),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("topic split call failed: %w", err)
	}

	var topics []splitTopic
	if err := json.Unmarshal([]byte(stripCodeFence(out.Content)), &topics); err != nil {
		return nil, fmt.Errorf("unparsable topic split output: %w", err)
	}

	inputs := make([]ingest.TopicInput, 0, len(topics))
	for _, t := range topics {
		in := ingest.TopicInput{
			Subject:  t.Subject,
			Summary:  t.Summary,
			Speakers: t.Speakers,
			StartID:  t.StartID,
			EndID:    t.EndID,
		}
		if m, ok := byID[t.StartID]; ok {
			in.Start = m.Timestamp
		}
		if m, ok := byID[t.EndID]; ok {
			in.End = m.Timestamp
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}
