package postgres

import (
	"context"
	"fmt"
	"time"

	"groupchat-ai-bot/internal/application/retrieval"
)

// LexicalIndex 基于 Postgres 全文检索的词法索引
// 主题与正文拼接后建 tsvector，按 ts_rank 降序返回
type LexicalIndex struct {
	client *Client
}

// NewLexicalIndex 创建词法索引
func NewLexicalIndex(client *Client) *LexicalIndex {
	return &LexicalIndex{client: client}
}

type lexicalRow struct {
	ID        string    `gorm:"column:id"`
	Subject   string    `gorm:"column:subject"`
	Summary   string    `gorm:"column:summary"`
	StartID   string    `gorm:"column:start_id"`
	EndID     string    `gorm:"column:end_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
	Rank      float64   `gorm:"column:rank"`
}

// SearchByText 执行群范围内的全文检索
func (idx *LexicalIndex) SearchByText(ctx context.Context, groupJID string, query string, limit int) ([]retrieval.Candidate, error) {
	ctx, span := tracer.Start(ctx, "postgres.LexicalIndex.SearchByText")
	defer span.End()

	db := getDB(ctx, idx.client.db)
	var rows []lexicalRow
	err := db.Raw(`
		SELECT id, subject, summary, start_id, end_id, created_at,
		       ts_rank(to_tsvector('simple', subject || ' ' || summary),
		               plainto_tsquery('simple', ?)) AS rank
		FROM kb_topics
		WHERE group_jid = ?
		  AND to_tsvector('simple', subject || ' ' || summary) @@ plainto_tsquery('simple', ?)
		ORDER BY rank DESC, created_at DESC
		LIMIT ?`,
		query, groupJID, query, limit,
	).Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	candidates := make([]retrieval.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, retrieval.Candidate{
			TopicID:   row.ID,
			Subject:   row.Subject,
			Summary:   row.Summary,
			SourceKey: row.StartID + ":" + row.EndID,
			CreatedAt: row.CreatedAt,
			Score:     row.Rank,
		})
	}
	return candidates, nil
}
