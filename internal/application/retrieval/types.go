// Package retrieval 实现面向群聊知识库的混合检索引擎
package retrieval

import (
	"time"
)

// SearchInput 检索输入
type SearchInput struct {
	// GroupJID 检索范围限定在单个群的语料内
	GroupJID string
	// Query 改写后的查询文本，用于全文检索
	Query string
	// Embedding 查询向量，由上游协作方生成
	Embedding []float32
	// TopK 结果条数上限，在融合与去重之后生效
	TopK int
}

// Candidate 单路索引返回的候选条目
// 两路索引各自按相关度降序返回，排名由切片下标推出
type Candidate struct {
	TopicID   string
	Subject   string
	Summary   string
	SourceKey string
	CreatedAt time.Time
	// Score 索引自身的原始相关度分数，仅用于调试展示
	Score float64
}

// SearchResult 融合后的检索结果
type SearchResult struct {
	TopicID   string    `json:"topic_id"`
	Subject   string    `json:"subject"`
	Summary   string    `json:"summary"`
	SourceKey string    `json:"source_key"`
	CreatedAt time.Time `json:"created_at"`
	// FusedScore RRF 融合分数
	FusedScore float64 `json:"fused_score"`
	// VectorRank 在向量候选集中的名次，从 1 开始，0 表示未命中
	VectorRank int `json:"vector_rank,omitempty"`
	// LexicalRank 在全文候选集中的名次，从 1 开始，0 表示未命中
	LexicalRank int `json:"lexical_rank,omitempty"`
}
