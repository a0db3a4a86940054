// Package ingest 实现知识库话题的入库与索引
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/internal/domain/repository"
	apperrors "groupchat-ai-bot/pkg/errors"
	"groupchat-ai-bot/pkg/logger"
	"groupchat-ai-bot/pkg/metrics"
	"groupchat-ai-bot/pkg/tracer"
)

const defaultEmbeddingBatch = 32

// VectorWriter 向量索引写入口
type VectorWriter interface {
	EnsureCollection(ctx context.Context) error
	InsertTopics(ctx context.Context, topics []*entity.KBTopic, vectors [][]float32) error
}

// TopicInput 待入库的单个话题
type TopicInput struct {
	Subject  string
	Summary  string
	Speakers []string
	StartID  string
	EndID    string
	Start    time.Time
	End      time.Time
}

// Indexer 话题索引器
// 话题同时落两份：Postgres 供全文检索与回查，Milvus 供向量召回
type Indexer struct {
	embedder embedding.Embedder
	vector   VectorWriter
	topics   repository.TopicRepository

	embeddingBatchSize int
}

// NewIndexer 创建话题索引器
func NewIndexer(embedder embedding.Embedder, vector VectorWriter, topics repository.TopicRepository, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatch
	}
	return &Indexer{
		embedder:           embedder,
		vector:             vector,
		topics:             topics,
		embeddingBatchSize: batchSize,
	}
}

// IndexTopics 批量入库话题
// 向量化按批执行；写入顺序先 Postgres 后 Milvus，
// Milvus 失败时话题仍可被全文检索命中
func (i *Indexer) IndexTopics(ctx context.Context, groupJID string, inputs []TopicInput) ([]*entity.KBTopic, error) {
	ctx, span := tracer.Start(ctx, "ingest.Indexer.IndexTopics")
	defer span.End()

	if strings.TrimSpace(groupJID) == "" {
		return nil, fmt.Errorf("group jid is required")
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	if err := i.vector.EnsureCollection(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIngestFailed, "vector collection not ready")
	}

	now := time.Now()
	topics := make([]*entity.KBTopic, 0, len(inputs))
	embedInputs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		subject := strings.TrimSpace(in.Subject)
		summary := strings.TrimSpace(in.Summary)
		if subject == "" || summary == "" {
			continue
		}
		topics = append(topics, &entity.KBTopic{
			ID:        uuid.NewString(),
			GroupJID:  groupJID,
			Subject:   subject,
			Summary:   summary,
			Speakers:  in.Speakers,
			StartID:   in.StartID,
			EndID:     in.EndID,
			StartTime: in.Start,
			EndTime:   in.End,
			CreatedAt: now,
		})
		// 主题和正文一起向量化，提升短问题的召回
		embedInputs = append(embedInputs, subject+"\n"+summary)
	}
	if len(topics) == 0 {
		return nil, nil
	}

	vectors, err := i.embedBatch(ctx, embedInputs)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "topic embedding failed")
	}

	if err := i.topics.SaveBatch(ctx, topics); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIngestFailed, "topic persistence failed")
	}

	if err := i.vector.InsertTopics(ctx, topics, vectors); err != nil {
		logger.FromContext(ctx).Error("vector insert failed, topics remain lexical-only",
			"group_jid", groupJID, "count", len(topics), "error", err)
		return topics, apperrors.Wrap(err, apperrors.CodeIngestFailed, "vector insert failed")
	}

	metrics.TopicsIngestedTotal.Add(float64(len(topics)))
	return topics, nil
}

// embedBatch 按批调用向量化服务
func (i *Indexer) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += i.embeddingBatchSize {
		end := start + i.embeddingBatchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		vecs, err := i.embedder.EmbedStrings(ctx, inputs[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), end-start)
		}
		for _, v := range vecs {
			vec32 := make([]float32, len(v))
			for j, f := range v {
				vec32[j] = float32(f)
			}
			out = append(out, vec32)
		}
	}
	return out, nil
}
