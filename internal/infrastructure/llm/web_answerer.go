package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"groupchat-ai-bot/internal/infrastructure/websearch"
	"groupchat-ai-bot/pkg/tracer"
)

const webAnswererSystemPrompt = `你是群助手。群聊记录里没有找到答案，下面是网页搜索结果。
只依据搜索结果回答问题，结果覆盖不到的内容明确说不知道。
回答简洁，适合在群里发送，句末附上引用的来源链接。`

// WebSource 网页搜索来源
type WebSource interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// WebAnswerer 网页搜索兜底回答生成器
// 仅在群聊语料无命中且群开启了网页搜索开关时使用
type WebAnswerer struct {
	factory *EinoFactory
	source  WebSource
}

// NewWebAnswerer 创建网页搜索回答生成器
func NewWebAnswerer(factory *EinoFactory, source WebSource) *WebAnswerer {
	return &WebAnswerer{factory: factory, source: source}
}

// AnswerFromWeb 搜索网页并基于结果生成回答
func (a *WebAnswerer) AnswerFromWeb(ctx context.Context, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.WebAnswerer.AnswerFromWeb")
	defer span.End()

	results, err := a.source.Search(ctx, question)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("web search failed: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("web search returned no results")
	}

	chatModel, err := a.factory.Default(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("网页搜索结果:\n")
	for i, res := range results {
		fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n", i+1, res.Title, res.URL, res.Content)
	}
	fmt.Fprintf(&sb, "\n问题: %s", question)

	out, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(webAnswererSystemPrompt),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("web answer call failed: %w", err)
	}

	return strings.TrimSpace(out.Content), nil
}
