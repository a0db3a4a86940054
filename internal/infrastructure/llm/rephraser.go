package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/pkg/tracer"
)

const rephraserSystemPrompt = `把用户的问题改写成一条独立、完整、适合检索的查询。
结合给出的近期群聊上下文消除指代（"这个"、"他说的"等）。
只输出改写后的查询文本，不要解释。`

// Rephraser 基于 ChatModel 的查询改写器
type Rephraser struct {
	factory *EinoFactory
}

// NewRephraser 创建查询改写器
func NewRephraser(factory *EinoFactory) *Rephraser {
	return &Rephraser{factory: factory}
}

// Rephrase 改写查询
func (r *Rephraser) Rephrase(ctx context.Context, question string, history []*entity.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Rephraser.Rephrase")
	defer span.End()

	chatModel, err := r.factory.Default(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("近期群聊:\n")
		// 历史按时间倒序传入，正序拼接
		for i := len(history) - 1; i >= 0; i-- {
			m := history[i]
			fmt.Fprintf(&sb, "%s: %s\n", m.PushName, m.Text)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "问题: %s", question)

	out, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(rephraserSystemPrompt),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("rephrase call failed: %w", err)
	}

	rephrased := strings.TrimSpace(out.Content)
	if rephrased == "" {
		return question, nil
	}
	return rephrased, nil
}
