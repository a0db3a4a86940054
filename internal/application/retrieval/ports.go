package retrieval

import (
	"context"
)

// VectorIndex 向量相似度索引
// 返回按相似度降序排列的候选，排名为 1-based 下标
type VectorIndex interface {
	SearchByVector(ctx context.Context, groupJID string, embedding []float32, limit int) ([]Candidate, error)
}

// LexicalIndex 全文检索索引
type LexicalIndex interface {
	SearchByText(ctx context.Context, groupJID string, query string, limit int) ([]Candidate, error)
}
