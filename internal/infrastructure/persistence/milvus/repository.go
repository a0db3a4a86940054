// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"groupchat-ai-bot/internal/application/retrieval"
	domain "groupchat-ai-bot/internal/domain/entity"
)

// Repository 向量索引仓储
// 同时实现检索侧的 VectorIndex 与入库侧的 VectorWriter
type Repository struct {
	client *Client
}

// NewRepository 创建向量索引仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// EnsureCollection 确保话题集合存在且已加载
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	collName := r.client.CollectionName(CollectionKBTopics)
	exists, err := r.client.milvus.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		schema := KBTopicsSchema()
		schema.CollectionName = collName
		if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if err := r.createIndex(ctx, collName); err != nil {
			return err
		}
	}

	return r.client.LoadCollection(ctx, CollectionKBTopics)
}

// createIndex 建 HNSW 向量索引
func (r *Repository) createIndex(ctx context.Context, collName string) error {
	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// InsertTopics 批量写入话题向量
func (r *Repository) InsertTopics(ctx context.Context, topics []*domain.KBTopic, vectors [][]float32) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertTopics",
		trace.WithAttributes(attribute.Int("count", len(topics))))
	defer span.End()

	if len(topics) == 0 {
		return nil
	}
	if len(topics) != len(vectors) {
		return fmt.Errorf("topic/vector count mismatch: %d vs %d", len(topics), len(vectors))
	}

	ids := make([]string, len(topics))
	groupJIDs := make([]string, len(topics))
	subjects := make([]string, len(topics))
	summaries := make([]string, len(topics))
	sourceKeys := make([]string, len(topics))
	createdAts := make([]int64, len(topics))

	for i, t := range topics {
		ids[i] = t.ID
		groupJIDs[i] = t.GroupJID
		subjects[i] = t.Subject
		summaries[i] = t.Summary
		sourceKeys[i] = t.SourceKey()
		createdAts[i] = t.CreatedAt.UnixMilli()
	}

	collName := r.client.CollectionName(CollectionKBTopics)
	_, err := r.client.milvus.Insert(ctx, collName, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector("vector", VectorDimension, vectors),
		entity.NewColumnVarChar("group_jid", groupJIDs),
		entity.NewColumnVarChar("subject", subjects),
		entity.NewColumnVarChar("summary", summaries),
		entity.NewColumnVarChar("source_key", sourceKeys),
		entity.NewColumnInt64("created_at", createdAts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert topics: %w", err)
	}
	return nil
}

// SearchByVector 群范围内的向量近邻检索
func (r *Repository) SearchByVector(ctx context.Context, groupJID string, embedding []float32, limit int) ([]retrieval.Candidate, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchByVector",
		trace.WithAttributes(
			attribute.String("group_jid", groupJID),
			attribute.Int("limit", limit),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionKBTopics)

	exists, err := r.client.milvus.HasCollection(ctx, collName)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		// 空语料不是错误
		return nil, nil
	}

	filter := fmt.Sprintf(`group_jid == "%s"`, escapeExpr(groupJID))

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		nil,
		filter,
		[]string{"id", "subject", "summary", "source_key", "created_at"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"vector",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var candidates []retrieval.Candidate
	for _, result := range results {
		idCol, _ := result.Fields.GetColumn("id").(*entity.ColumnVarChar)
		subjectCol, _ := result.Fields.GetColumn("subject").(*entity.ColumnVarChar)
		summaryCol, _ := result.Fields.GetColumn("summary").(*entity.ColumnVarChar)
		sourceCol, _ := result.Fields.GetColumn("source_key").(*entity.ColumnVarChar)
		timeCol, _ := result.Fields.GetColumn("created_at").(*entity.ColumnInt64)

		for i := 0; i < result.ResultCount; i++ {
			c := retrieval.Candidate{Score: float64(result.Scores[i])}
			if idCol != nil {
				c.TopicID, _ = idCol.ValueByIdx(i)
			}
			if subjectCol != nil {
				c.Subject, _ = subjectCol.ValueByIdx(i)
			}
			if summaryCol != nil {
				c.Summary, _ = summaryCol.ValueByIdx(i)
			}
			if sourceCol != nil {
				c.SourceKey, _ = sourceCol.ValueByIdx(i)
			}
			if timeCol != nil {
				if ms, err := timeCol.ValueByIdx(i); err == nil {
					c.CreatedAt = time.UnixMilli(ms)
				}
			}
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// escapeExpr 转义过滤表达式中的字符串值
func escapeExpr(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
