package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"groupchat-ai-bot/internal/application/moderation"
	"groupchat-ai-bot/pkg/tracer"
)

const spamDetectorSystemPrompt = `你是 WhatsApp 群邀请链接的垃圾信息检测器。根据消息内容给出 1-5 的疑似垃圾评分和简短判断依据，只输出 JSON，不要输出其他内容。
字段:
- score: 1 到 5 的整数，1 表示不是垃圾，5 表示极可能是垃圾
- explanation: 不超过 100 字的判断依据
输出格式: {"score":1,"explanation":"..."}`

// SpamDetector 基于 ChatModel 的垃圾链接评估器
type SpamDetector struct {
	factory *EinoFactory
}

// NewSpamDetector 创建垃圾链接评估器
func NewSpamDetector(factory *EinoFactory) *SpamDetector {
	return &SpamDetector{factory: factory}
}

type spamResult struct {
	Score       int    `json:"score"`
	Explanation string `json:"explanation"`
}

// Assess 评估一条带群邀请链接的消息
func (d *SpamDetector) Assess(ctx context.Context, groupName, senderJID, text string) (*moderation.Verdict, error) {
	ctx, span := tracer.Start(ctx, "llm.SpamDetector.Assess")
	defer span.End()

	chatModel, err := d.factory.Default(ctx)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("群名: %s\n发送者: %s\n消息内容: %s", groupName, senderJID, text)
	out, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(spamDetectorSystemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("spam assessment call failed: %w", err)
	}

	var result spamResult
	if err := json.Unmarshal([]byte(stripCodeFence(out.Content)), &result); err != nil {
		return nil, fmt.Errorf("unparsable spam assessment output: %w", err)
	}

	if result.Score < 1 {
		result.Score = 1
	} else if result.Score > 5 {
		result.Score = 5
	}

	return &moderation.Verdict{
		Score:       result.Score,
		Explanation: result.Explanation,
	}, nil
}
