package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-ai-bot/internal/application/retrieval"
	"groupchat-ai-bot/internal/domain/entity"
	apperrors "groupchat-ai-bot/pkg/errors"
	"groupchat-ai-bot/pkg/metrics"
)

type fakeLimiter struct {
	rejectKeys map[string]bool
	err        error
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.rejectKeys[key], nil
}

type fakeGate struct {
	member bool
	calls  int
}

func (f *fakeGate) IsMember(_ context.Context, _, _ string) bool {
	f.calls++
	return f.member
}

type fakeSearcher struct {
	results []retrieval.SearchResult
	err     error
	lastIn  retrieval.SearchInput
}

func (f *fakeSearcher) Search(_ context.Context, in retrieval.SearchInput) ([]retrieval.SearchResult, error) {
	f.lastIn = in
	return f.results, f.err
}

type fakeClassifier struct {
	cls   *Classification
	err   error
	calls int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, _ []*entity.Message) (*Classification, error) {
	f.calls++
	return f.cls, f.err
}

type fakeRephraser struct {
	out string
	err error
}

func (f *fakeRephraser) Rephrase(_ context.Context, question string, _ []*entity.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return question, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

type fakeAnswerer struct {
	out string
	err error
}

func (f *fakeAnswerer) Answer(_ context.Context, _ string, _ []retrieval.SearchResult) (string, error) {
	return f.out, f.err
}

type fakeWebAnswerer struct {
	out   string
	err   error
	calls int
}

func (f *fakeWebAnswerer) AnswerFromWeb(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.out, f.err
}

type fakeSummarizer struct {
	out string
	err error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ *entity.Group, _ []*entity.Message) (string, error) {
	return f.out, f.err
}

type fakeGroupRepo struct {
	groups  map[string]*entity.Group
	managed []*entity.Group
}

func (f *fakeGroupRepo) Upsert(_ context.Context, _ *entity.Group) error { return nil }

func (f *fakeGroupRepo) GetByJID(_ context.Context, jid string) (*entity.Group, error) {
	return f.groups[jid], nil
}

func (f *fakeGroupRepo) ListManaged(_ context.Context) ([]*entity.Group, error) {
	return f.managed, nil
}

func (f *fakeGroupRepo) SetManaged(_ context.Context, _ string, _ bool) error   { return nil }
func (f *fakeGroupRepo) SetWebSearch(_ context.Context, _ string, _ bool) error { return nil }
func (f *fakeGroupRepo) TouchSummarySync(_ context.Context, _ string) error     { return nil }

type fakeMessageRepo struct {
	msgs      []*entity.Message
	listCalls int
	lastLimit int
}

func (f *fakeMessageRepo) Save(_ context.Context, _ *entity.Message) error { return nil }

func (f *fakeMessageRepo) ListByWindow(_ context.Context, _ string, _, _ time.Time, limit int) ([]*entity.Message, error) {
	f.listCalls++
	f.lastLimit = limit
	return f.msgs, nil
}

func (f *fakeMessageRepo) CountSince(_ context.Context, _ string, _ time.Time) (int64, error) {
	return int64(len(f.msgs)), nil
}

type routerFixture struct {
	router      *Router
	limiter     *fakeLimiter
	gate        *fakeGate
	searcher    *fakeSearcher
	classifier  *fakeClassifier
	rephraser   *fakeRephraser
	embedder    *fakeEmbedder
	answerer    *fakeAnswerer
	webAnswerer *fakeWebAnswerer
	summarizer  *fakeSummarizer
	groups      *fakeGroupRepo
	messages    *fakeMessageRepo
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		limiter:     &fakeLimiter{rejectKeys: map[string]bool{}},
		gate:        &fakeGate{member: true},
		searcher:    &fakeSearcher{},
		classifier:  &fakeClassifier{cls: &Classification{Intent: IntentOther}},
		rephraser:   &fakeRephraser{},
		embedder:    &fakeEmbedder{vec: []float32{0.1}},
		answerer:    &fakeAnswerer{out: "generated answer"},
		webAnswerer: &fakeWebAnswerer{out: "web grounded answer"},
		summarizer:  &fakeSummarizer{out: "generated summary"},
		groups: &fakeGroupRepo{groups: map[string]*entity.Group{
			"g1": {JID: "g1", Name: "dev team", Managed: true},
		}},
		messages: &fakeMessageRepo{},
	}
	f.groups.managed = []*entity.Group{f.groups.groups["g1"]}

	f.router = NewRouter(
		Config{
			SenderLimit: RateWindow{Limit: 5, Window: time.Minute},
			GroupLimit:  RateWindow{Limit: 20, Window: time.Minute},
			SearchTopK:  5,
		},
		f.limiter, f.gate, NewTimeWindowResolver(), f.searcher,
		f.classifier, f.rephraser, f.embedder, f.answerer, f.webAnswerer, f.summarizer,
		f.groups, f.messages,
	)
	return f
}

func inbound(text string) *InboundMessage {
	return &InboundMessage{
		ID:        "m1",
		GroupJID:  "g1",
		SenderJID: "u1",
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestRouteRateLimitedIsSilentDrop(t *testing.T) {
	f := newRouterFixture()
	f.limiter.rejectKeys["sender:u1"] = true

	d := f.router.Route(context.Background(), inbound("hello"))
	assert.Equal(t, OutcomeRateLimited, d.Outcome)
	assert.Empty(t, d.Reply, "rate limited message must not produce a reply")
	assert.Equal(t, 0, f.classifier.calls, "dropped message must not reach the classifier")
}

func TestRouteAdmitsWhenLimiterBackendFails(t *testing.T) {
	f := newRouterFixture()
	f.limiter.err = errors.New("redis connection refused")

	before := testutil.ToFloat64(metrics.RateLimiterErrorsTotal.WithLabelValues("sender"))
	d := f.router.Route(context.Background(), inbound("hello"))

	assert.NotEqual(t, OutcomeRateLimited, d.Outcome, "backend failure admits instead of dropping")
	assert.Equal(t, 1, f.classifier.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimiterErrorsTotal.WithLabelValues("sender")))
}

func TestRouteGroupRateLimit(t *testing.T) {
	f := newRouterFixture()
	f.limiter.rejectKeys["group:g1"] = true

	d := f.router.Route(context.Background(), inbound("hello"))
	assert.Equal(t, OutcomeRateLimited, d.Outcome)
}

func TestRouteClassificationFailure(t *testing.T) {
	f := newRouterFixture()
	f.classifier.err = errors.New("llm unavailable")

	d := f.router.Route(context.Background(), inbound("hello"))
	assert.Equal(t, OutcomeError, d.Outcome)
	assert.True(t, apperrors.HasCode(d.Err, apperrors.CodeClassificationFailed))
}

func TestRouteQuestionProducesAnswer(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}
	f.rephraser.out = "rephrased question"
	f.searcher.results = []retrieval.SearchResult{{TopicID: "t1", FusedScore: 0.03}}

	d := f.router.Route(context.Background(), inbound("how did we fix the deploy?"))
	assert.Equal(t, OutcomeAnswer, d.Outcome)
	assert.Equal(t, "generated answer", d.Reply)
	require.Len(t, d.Evidence, 1)

	assert.Equal(t, "g1", f.searcher.lastIn.GroupJID)
	assert.Equal(t, "rephrased question", f.searcher.lastIn.Query)
	assert.Equal(t, 5, f.searcher.lastIn.TopK)
}

func TestRouteQuestionEmptyCorpus(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}

	d := f.router.Route(context.Background(), inbound("anything?"))
	assert.Equal(t, OutcomeNoKnowledge, d.Outcome)
	assert.NotEmpty(t, d.Reply)
	assert.Nil(t, d.Err, "empty corpus is not an error")
}

func TestRouteQuestionWebSearchFallback(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}
	f.groups.groups["g1"].EnableWebSearch = true

	d := f.router.Route(context.Background(), inbound("最新的 Go 版本是多少?"))
	assert.Equal(t, OutcomeWebAnswer, d.Outcome)
	assert.Equal(t, "web grounded answer", d.Reply)
	assert.Equal(t, 1, f.webAnswerer.calls)
}

func TestRouteQuestionWebSearchDisabledByGroupFlag(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}

	d := f.router.Route(context.Background(), inbound("anything?"))
	assert.Equal(t, OutcomeNoKnowledge, d.Outcome)
	assert.Equal(t, 0, f.webAnswerer.calls, "web fallback requires the group flag")
}

func TestRouteQuestionWebSearchFailureFallsBack(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}
	f.groups.groups["g1"].EnableWebSearch = true
	f.webAnswerer.err = errors.New("search api down")

	d := f.router.Route(context.Background(), inbound("anything?"))
	assert.Equal(t, OutcomeNoKnowledge, d.Outcome, "web failure degrades to the fixed reply")
	assert.Nil(t, d.Err)
}

func TestRouteQuestionEvidenceSkipsWebFallback(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}
	f.groups.groups["g1"].EnableWebSearch = true
	f.searcher.results = []retrieval.SearchResult{{TopicID: "t1"}}

	d := f.router.Route(context.Background(), inbound("q"))
	assert.Equal(t, OutcomeAnswer, d.Outcome)
	assert.Equal(t, 0, f.webAnswerer.calls, "corpus hit answers without touching the web")
}

func TestRouteQuestionRephraseFailureKeepsIntent(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}
	f.rephraser.err = errors.New("llm timeout")
	f.searcher.results = []retrieval.SearchResult{{TopicID: "t1"}}

	d := f.router.Route(context.Background(), inbound("raw question"))
	assert.Equal(t, OutcomeAnswer, d.Outcome)
	assert.Equal(t, "raw question", f.searcher.lastIn.Query, "falls back to the raw question text")
}

func TestRouteQuestionEmbeddingFailure(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}
	f.embedder.err = errors.New("embedding service down")

	d := f.router.Route(context.Background(), inbound("q"))
	assert.Equal(t, OutcomeError, d.Outcome)
	assert.True(t, apperrors.HasCode(d.Err, apperrors.CodeEmbeddingFailed))
}

func TestRouteSummaryForMember(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentSummarize}
	f.messages.msgs = []*entity.Message{{ID: "m0", Text: "talk"}}

	d := f.router.Route(context.Background(), inbound("summarize please"))
	assert.Equal(t, OutcomeSummary, d.Outcome)
	assert.Equal(t, "generated summary", d.Reply)
	assert.Equal(t, 30, f.messages.lastLimit, "default window caps history at 30 messages")
}

func TestRouteSummaryExplicitWindowCap(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentSummarize, DurationHint: 3 * time.Hour}

	d := f.router.Route(context.Background(), inbound("summarize last 3 hours"))
	assert.Equal(t, OutcomeSummary, d.Outcome)
	assert.Equal(t, 100, f.messages.lastLimit)
}

func TestRouteSummaryDeniedForNonMember(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentSummarize}
	f.gate.member = false

	d := f.router.Route(context.Background(), inbound("summarize please"))
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, denialReply, d.Reply)
	assert.Equal(t, 0, f.messages.listCalls, "denied request must issue zero history reads")
}

func TestRouteSummaryUnmanagedGroupDenied(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentSummarize}
	f.groups.groups["g1"].Managed = false
	f.groups.managed = nil

	d := f.router.Route(context.Background(), inbound("summarize please"))
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, denialReply, d.Reply, "unmanaged group uses the same fixed refusal")
	assert.Equal(t, 0, f.gate.calls)
}

func TestRouteSummaryNamedGroup(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentSummarize, TargetGroupHint: "Dev Team"}

	d := f.router.Route(context.Background(), inbound("summarize dev team"))
	assert.Equal(t, OutcomeSummary, d.Outcome)
}

func TestRouteSummaryUnknownNamedGroupDenied(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentSummarize, TargetGroupHint: "secret group"}

	d := f.router.Route(context.Background(), inbound("summarize secret group"))
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, denialReply, d.Reply, "unknown group gets the same refusal as non-membership")
}

func TestRouteAboutBypassesChecks(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAbout}

	d := f.router.Route(context.Background(), inbound("who are you?"))
	assert.Equal(t, OutcomeAbout, d.Outcome)
	assert.NotEmpty(t, d.Reply)
	assert.Equal(t, 0, f.gate.calls)
	assert.Equal(t, 0, f.messages.listCalls)
}

func TestRouteOtherIntent(t *testing.T) {
	f := newRouterFixture()
	d := f.router.Route(context.Background(), inbound("lol"))
	assert.Equal(t, OutcomeDefault, d.Outcome)
	assert.Empty(t, d.Reply)
}

func TestRouteTimeoutOutcome(t *testing.T) {
	f := newRouterFixture()
	f.classifier.cls = &Classification{Intent: IntentAskQuestion}
	f.embedder.err = context.DeadlineExceeded

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	d := f.router.Route(ctx, inbound("q"))
	assert.Equal(t, OutcomeTimeout, d.Outcome)
	assert.True(t, apperrors.HasCode(d.Err, apperrors.CodeTimeout))
}
