package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "groupchat-ai-bot/pkg/errors"
	"groupchat-ai-bot/pkg/logger"
	"groupchat-ai-bot/pkg/metrics"
	"groupchat-ai-bot/pkg/tracer"
)

const (
	// rrfK RRF 平滑常数
	rrfK = 60.0

	defaultTopK = 5
	maxTopK     = 50

	// candidateMultiplier 单路召回量相对 TopK 的放大倍数
	// 融合前截断任一候选集都会让先返回的索引获得不当权重，
	// 因此召回量必须显著大于最终条数
	candidateMultiplier = 4
	minCandidateLimit   = 20
)

// Engine 混合检索引擎
// 对同一群语料并行执行向量召回与全文召回，用 RRF 融合排名
type Engine struct {
	vector  VectorIndex
	lexical LexicalIndex
}

// NewEngine 创建混合检索引擎
func NewEngine(vector VectorIndex, lexical LexicalIndex) *Engine {
	return &Engine{
		vector:  vector,
		lexical: lexical,
	}
}

// Search 执行混合检索
// 空语料返回空切片而不是错误；任一路无命中时退化为单路结果
func (e *Engine) Search(ctx context.Context, in SearchInput) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Engine.Search")
	defer span.End()

	in.Query = strings.TrimSpace(in.Query)
	if in.GroupJID == "" {
		return nil, ErrMissingGroup
	}
	if in.Query == "" && len(in.Embedding) == 0 {
		return nil, ErrEmptyQuery
	}
	if in.TopK <= 0 {
		in.TopK = defaultTopK
	}
	if in.TopK > maxTopK {
		in.TopK = maxTopK
	}

	candidateLimit := in.TopK * candidateMultiplier
	if candidateLimit < minCandidateLimit {
		candidateLimit = minCandidateLimit
	}

	var (
		vecHits []Candidate
		lexHits []Candidate
	)

	g, gctx := errgroup.WithContext(ctx)

	if e.vector != nil && len(in.Embedding) > 0 {
		g.Go(func() error {
			start := time.Now()
			hits, err := e.vector.SearchByVector(gctx, in.GroupJID, in.Embedding, candidateLimit)
			metrics.SearchDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeSearchUnavailable, "vector search failed")
			}
			metrics.SearchCandidates.WithLabelValues("vector").Observe(float64(len(hits)))
			vecHits = hits
			return nil
		})
	}

	if e.lexical != nil && in.Query != "" {
		g.Go(func() error {
			start := time.Now()
			hits, err := e.lexical.SearchByText(gctx, in.GroupJID, in.Query, candidateLimit)
			metrics.SearchDuration.WithLabelValues("lexical").Observe(time.Since(start).Seconds())
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeSearchUnavailable, "lexical search failed")
			}
			metrics.SearchCandidates.WithLabelValues("lexical").Observe(float64(len(hits)))
			lexHits = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := fuseRank(vecHits, lexHits)
	merged = dedupBySource(merged)

	if len(merged) > in.TopK {
		merged = merged[:in.TopK]
	}

	logger.FromContext(ctx).Debug("hybrid search completed",
		"group_jid", in.GroupJID,
		"vector_hits", len(vecHits),
		"lexical_hits", len(lexHits),
		"returned", len(merged),
	)

	return merged, nil
}

// fuseRank RRF 融合重排
// 每条候选的融合分为 1/(k+rank_vector) 与 1/(k+rank_lexical) 之和，
// 未命中的那一路贡献 0；排名从 1 开始
func fuseRank(vecHits, lexHits []Candidate) []SearchResult {
	results := make(map[string]*SearchResult)

	for i, c := range vecHits {
		rank := i + 1
		r, ok := results[c.TopicID]
		if !ok {
			r = candidateToResult(c)
			results[c.TopicID] = r
		}
		r.VectorRank = rank
		r.FusedScore += 1.0 / (rrfK + float64(rank))
	}

	for i, c := range lexHits {
		rank := i + 1
		r, ok := results[c.TopicID]
		if !ok {
			r = candidateToResult(c)
			results[c.TopicID] = r
		}
		r.LexicalRank = rank
		r.FusedScore += 1.0 / (rrfK + float64(rank))
	}

	merged := make([]SearchResult, 0, len(results))
	for _, r := range results {
		merged = append(merged, *r)
	}

	sortResults(merged)
	return merged
}

// sortResults 按融合分降序排序，同分时较新的话题优先
func sortResults(rs []SearchResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].FusedScore != rs[j].FusedScore {
			return rs[i].FusedScore > rs[j].FusedScore
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}

// dedupBySource 按源消息区间去重
// 同一区间重复蒸馏产生的多条话题只保留融合分最高的一条
// 输入已按分数降序，顺序扫描即可保证留下的是最高分
func dedupBySource(rs []SearchResult) []SearchResult {
	seen := make(map[string]struct{}, len(rs))
	out := rs[:0]
	for _, r := range rs {
		key := r.SourceKey
		if key == "" {
			key = r.TopicID
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func candidateToResult(c Candidate) *SearchResult {
	return &SearchResult{
		TopicID:   c.TopicID,
		Subject:   c.Subject,
		Summary:   c.Summary,
		SourceKey: c.SourceKey,
		CreatedAt: c.CreatedAt,
	}
}
