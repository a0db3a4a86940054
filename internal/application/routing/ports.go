package routing

import (
	"context"
	"time"

	"groupchat-ai-bot/internal/application/retrieval"
	"groupchat-ai-bot/internal/domain/entity"
)

// RateLimiter 滑动窗口限流接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// MemberChecker 成员校验接口
type MemberChecker interface {
	IsMember(ctx context.Context, senderJID, groupJID string) bool
}

// Searcher 混合检索接口
type Searcher interface {
	Search(ctx context.Context, in retrieval.SearchInput) ([]retrieval.SearchResult, error)
}

// IntentClassifier 意图分类协作方
// 从消息文本中抽取意图、目标群名与时间窗口时长
type IntentClassifier interface {
	Classify(ctx context.Context, text string, history []*entity.Message) (*Classification, error)
}

// QueryRephraser 查询改写协作方
type QueryRephraser interface {
	Rephrase(ctx context.Context, question string, history []*entity.Message) (string, error)
}

// QueryEmbedder 查询向量化协作方
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator 回答生成协作方
type AnswerGenerator interface {
	Answer(ctx context.Context, question string, evidence []retrieval.SearchResult) (string, error)
}

// WebAnswerer 网页搜索兜底协作方
// 语料无命中且群开启了网页搜索开关时生成回答，未配置时为 nil
type WebAnswerer interface {
	AnswerFromWeb(ctx context.Context, question string) (string, error)
}

// Summarizer 摘要生成协作方
type Summarizer interface {
	Summarize(ctx context.Context, group *entity.Group, messages []*entity.Message) (string, error)
}
