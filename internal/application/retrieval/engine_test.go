package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "groupchat-ai-bot/pkg/errors"
)

type fakeVectorIndex struct {
	hits  []Candidate
	err   error
	calls int
}

func (f *fakeVectorIndex) SearchByVector(_ context.Context, _ string, _ []float32, _ int) ([]Candidate, error) {
	f.calls++
	return f.hits, f.err
}

type fakeLexicalIndex struct {
	hits  []Candidate
	err   error
	calls int
}

func (f *fakeLexicalIndex) SearchByText(_ context.Context, _ string, _ string, _ int) ([]Candidate, error) {
	f.calls++
	return f.hits, f.err
}

func mkCandidate(id, sourceKey string, createdAt time.Time) Candidate {
	return Candidate{
		TopicID:   id,
		Subject:   "subject-" + id,
		Summary:   "summary-" + id,
		SourceKey: sourceKey,
		CreatedAt: createdAt,
	}
}

func TestSearchFusesBothSignals(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	vec := &fakeVectorIndex{hits: []Candidate{
		mkCandidate("a", "m1:m5", base),
		mkCandidate("b", "m6:m9", base),
	}}
	lex := &fakeLexicalIndex{hits: []Candidate{
		mkCandidate("b", "m6:m9", base),
		mkCandidate("c", "m10:m12", base),
	}}

	e := NewEngine(vec, lex)
	got, err := e.Search(context.Background(), SearchInput{
		GroupJID:  "g1",
		Query:     "deploy issue",
		Embedding: []float32{0.1, 0.2},
		TopK:      10,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// b 同时命中两路，融合分最高
	assert.Equal(t, "b", got[0].TopicID)
	assert.Equal(t, 2, got[0].VectorRank)
	assert.Equal(t, 1, got[0].LexicalRank)
	assert.InDelta(t, 1.0/62+1.0/61, got[0].FusedScore, 1e-9)

	// a 仅向量命中且排名第一，高于仅全文命中且排名第二的 c
	assert.Equal(t, "a", got[1].TopicID)
	assert.Equal(t, 0, got[1].LexicalRank)
	assert.Equal(t, "c", got[2].TopicID)
	assert.Equal(t, 0, got[2].VectorRank)
}

func TestSearchRRFOrderingAcrossDisjointHits(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	vec := &fakeVectorIndex{hits: []Candidate{
		mkCandidate("a", "m1:m3", base),
		mkCandidate("b", "m4:m6", base),
		mkCandidate("c", "m7:m9", base),
	}}
	lex := &fakeLexicalIndex{hits: []Candidate{
		mkCandidate("b", "m4:m6", base),
		mkCandidate("d", "m10:m12", base),
	}}

	e := NewEngine(vec, lex)
	got, err := e.Search(context.Background(), SearchInput{
		GroupJID:  "g1",
		Query:     "release checklist",
		Embedding: []float32{0.3, 0.4},
		TopK:      10,
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	// k=60：b = 1/62 + 1/61，a = 1/61，d = 1/62，c = 1/63
	assert.Equal(t, "b", got[0].TopicID)
	assert.InDelta(t, 1.0/62+1.0/61, got[0].FusedScore, 1e-9)
	assert.Equal(t, "a", got[1].TopicID)
	assert.InDelta(t, 1.0/61, got[1].FusedScore, 1e-9)
	assert.Equal(t, "d", got[2].TopicID)
	assert.InDelta(t, 1.0/62, got[2].FusedScore, 1e-9)
	assert.Equal(t, "c", got[3].TopicID)
	assert.InDelta(t, 1.0/63, got[3].FusedScore, 1e-9)
}

func TestSearchEmptyCorpusReturnsEmpty(t *testing.T) {
	e := NewEngine(&fakeVectorIndex{}, &fakeLexicalIndex{})
	got, err := e.Search(context.Background(), SearchInput{
		GroupJID:  "g1",
		Query:     "anything",
		Embedding: []float32{0.5},
		TopK:      5,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchVectorOnlyWhenLexicalMisses(t *testing.T) {
	base := time.Now()
	vec := &fakeVectorIndex{hits: []Candidate{mkCandidate("a", "m1:m2", base)}}
	lex := &fakeLexicalIndex{}

	e := NewEngine(vec, lex)
	got, err := e.Search(context.Background(), SearchInput{
		GroupJID:  "g1",
		Query:     "niche phrase",
		Embedding: []float32{0.5},
		TopK:      5,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].TopicID)
	assert.Equal(t, 1, got[0].VectorRank)
	assert.Equal(t, 0, got[0].LexicalRank)
}

func TestSearchSkipsIndexWithoutSignal(t *testing.T) {
	vec := &fakeVectorIndex{}
	lex := &fakeLexicalIndex{hits: []Candidate{mkCandidate("a", "m1:m2", time.Now())}}
	e := NewEngine(vec, lex)

	// 没有向量时只走全文
	got, err := e.Search(context.Background(), SearchInput{
		GroupJID: "g1",
		Query:    "text only",
		TopK:     5,
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 0, vec.calls)
	assert.Equal(t, 1, lex.calls)
}

func TestSearchDedupBySourceKeepsHighestScore(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// a 与 a2 来自同一源消息区间，a 同时命中两路因此融合分更高
	vec := &fakeVectorIndex{hits: []Candidate{
		mkCandidate("a", "m1:m5", base),
		mkCandidate("a2", "m1:m5", base.Add(time.Hour)),
	}}
	lex := &fakeLexicalIndex{hits: []Candidate{
		mkCandidate("a", "m1:m5", base),
	}}

	e := NewEngine(vec, lex)
	got, err := e.Search(context.Background(), SearchInput{
		GroupJID:  "g1",
		Query:     "q",
		Embedding: []float32{0.5},
		TopK:      5,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].TopicID)
}

func TestSearchRecencyTieBreak(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 1, 0)

	// 两条候选各自在单独一路命中且排名相同，融合分相等
	vec := &fakeVectorIndex{hits: []Candidate{mkCandidate("old", "m1:m2", older)}}
	lex := &fakeLexicalIndex{hits: []Candidate{mkCandidate("new", "m3:m4", newer)}}

	e := NewEngine(vec, lex)
	got, err := e.Search(context.Background(), SearchInput{
		GroupJID:  "g1",
		Query:     "q",
		Embedding: []float32{0.5},
		TopK:      5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].TopicID)
	assert.Equal(t, "old", got[1].TopicID)
}

func TestSearchTopKAppliedAfterFusion(t *testing.T) {
	base := time.Now()
	vec := &fakeVectorIndex{hits: []Candidate{
		mkCandidate("v1", "s1", base),
		mkCandidate("v2", "s2", base),
		mkCandidate("shared", "s3", base),
	}}
	lex := &fakeLexicalIndex{hits: []Candidate{
		mkCandidate("shared", "s3", base),
		mkCandidate("l1", "s4", base),
	}}

	e := NewEngine(vec, lex)
	got, err := e.Search(context.Background(), SearchInput{
		GroupJID:  "g1",
		Query:     "q",
		Embedding: []float32{0.5},
		TopK:      2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// shared 在全文第 1、向量第 3，融合后必须挤进前二，
	// 若在融合前按 TopK 截断候选集它会被漏掉
	assert.Equal(t, "shared", got[0].TopicID)
}

func TestSearchIndexFailurePropagates(t *testing.T) {
	vec := &fakeVectorIndex{err: errors.New("milvus down")}
	lex := &fakeLexicalIndex{hits: []Candidate{mkCandidate("a", "m1:m2", time.Now())}}

	e := NewEngine(vec, lex)
	_, err := e.Search(context.Background(), SearchInput{
		GroupJID:  "g1",
		Query:     "q",
		Embedding: []float32{0.5},
		TopK:      5,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSearchUnavailable))
}

func TestSearchValidation(t *testing.T) {
	e := NewEngine(&fakeVectorIndex{}, &fakeLexicalIndex{})

	_, err := e.Search(context.Background(), SearchInput{Query: "q"})
	assert.ErrorIs(t, err, ErrMissingGroup)

	_, err = e.Search(context.Background(), SearchInput{GroupJID: "g1"})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}
