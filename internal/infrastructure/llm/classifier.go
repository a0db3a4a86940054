package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"groupchat-ai-bot/internal/application/routing"
	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/pkg/tracer"
)

const classifierSystemPrompt = `你是群聊机器人的意图分类器。根据用户消息判断意图，只输出 JSON，不要输出其他内容。
意图取值:
- "ask_question": 基于群聊历史的知识提问
- "summarize": 请求群聊摘要
- "about": 询问机器人自身
- "other": 其他
字段:
- intent: 意图
- target_group: 摘要请求中点名的群名，未点名时为空字符串
- duration_hours: 摘要请求中的回看时长（小时，数字），未给出时为 0
输出格式: {"intent":"...","target_group":"...","duration_hours":0}`

// Classifier 基于 ChatModel 的意图分类器
type Classifier struct {
	factory *EinoFactory
}

// NewClassifier 创建意图分类器
func NewClassifier(factory *EinoFactory) *Classifier {
	return &Classifier{factory: factory}
}

type classifyResult struct {
	Intent        string  `json:"intent"`
	TargetGroup   string  `json:"target_group"`
	DurationHours float64 `json:"duration_hours"`
}

// Classify 分类一条消息
func (c *Classifier) Classify(ctx context.Context, text string, _ []*entity.Message) (*routing.Classification, error) {
	ctx, span := tracer.Start(ctx, "llm.Classifier.Classify")
	defer span.End()

	chatModel, err := c.factory.Default(ctx)
	if err != nil {
		return nil, err
	}

	out, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(text),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("classification call failed: %w", err)
	}

	var result classifyResult
	if err := json.Unmarshal([]byte(stripCodeFence(out.Content)), &result); err != nil {
		return nil, fmt.Errorf("unparsable classification output: %w", err)
	}

	intent := routing.Intent(result.Intent)
	switch intent {
	case routing.IntentAskQuestion, routing.IntentSummarize, routing.IntentAbout, routing.IntentOther:
	default:
		intent = routing.IntentOther
	}

	return &routing.Classification{
		Intent:          intent,
		TargetGroupHint: strings.TrimSpace(result.TargetGroup),
		DurationHint:    time.Duration(result.DurationHours * float64(time.Hour)),
	}, nil
}

// stripCodeFence 去掉模型偶尔包裹的 markdown 代码块
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
