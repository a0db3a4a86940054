package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"groupchat-ai-bot/internal/application/retrieval"
	"groupchat-ai-bot/pkg/tracer"
)

const answererSystemPrompt = `你是群助手。只依据给出的群聊话题记录回答问题。
记录里没有的内容不要编造；不确定时明确说不知道。
回答简洁，适合在群里发送。`

// Answerer 基于 ChatModel 的回答生成器
type Answerer struct {
	factory *EinoFactory
}

// NewAnswerer 创建回答生成器
func NewAnswerer(factory *EinoFactory) *Answerer {
	return &Answerer{factory: factory}
}

// Answer 基于检索证据生成回答
func (a *Answerer) Answer(ctx context.Context, question string, evidence []retrieval.SearchResult) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Answerer.Answer")
	defer span.End()

	chatModel, err := a.factory.Default(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("相关话题记录:\n")
	for i, ev := range evidence {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, ev.Subject, ev.Summary)
	}
	fmt.Fprintf(&sb, "\n问题: %s", question)

	out, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(answererSystemPrompt),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("answer call failed: %w", err)
	}

	return strings.TrimSpace(out.Content), nil
}
