// Package embedding 提供查询与话题向量化实现
package embedding

import (
	"context"
	"fmt"

	"groupchat-ai-bot/internal/config"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// NewEinoEmbedder 创建基于 Eino 的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}

	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return embedder, nil
}

// QueryEmbedder 单条查询向量化适配器
type QueryEmbedder struct {
	embedder embedding.Embedder
}

// NewQueryEmbedder 创建查询向量化适配器
func NewQueryEmbedder(embedder embedding.Embedder) *QueryEmbedder {
	return &QueryEmbedder{embedder: embedder}
}

// EmbedQuery 向量化单条查询文本
func (q *QueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := q.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("unexpected embedding count: %d", len(vecs))
	}
	out := make([]float32, len(vecs[0]))
	for i, f := range vecs[0] {
		out[i] = float32(f)
	}
	return out, nil
}
