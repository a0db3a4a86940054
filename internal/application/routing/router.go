package routing

import (
	"context"
	"errors"
	"strings"
	"time"

	"groupchat-ai-bot/internal/application/retrieval"
	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/internal/domain/repository"
	apperrors "groupchat-ai-bot/pkg/errors"
	"groupchat-ai-bot/pkg/logger"
	"groupchat-ai-bot/pkg/metrics"
	"groupchat-ai-bot/pkg/tracer"
)

// denialReply 成员校验拒绝时的固定话术
// 不能透露目标群是否存在，否则会泄露群成员信息
const denialReply = "抱歉，我只能为群成员提供该群的聊天摘要。"

// noKnowledgeReply 语料无命中时的固定话术
const noKnowledgeReply = "我还没有这方面的记录，等群里聊过之后再来问我吧。"

// aboutReply 机器人自述
const aboutReply = "我是群助手，可以回答基于群聊历史的问题，也可以按时间段生成群聊摘要。"

// Config 路由器行为参数
type Config struct {
	SenderLimit  RateWindow
	GroupLimit   RateWindow
	SearchTopK   int
	HistoryDepth int
}

// RateWindow 单个限流键的窗口参数
type RateWindow struct {
	Limit  int
	Window time.Duration
}

// Router 消息路由器
// 每条入站消息独立走一遍状态机，跨消息不保留任何会话状态
type Router struct {
	cfg Config

	limiter  RateLimiter
	gate     MemberChecker
	resolver *TimeWindowResolver
	searcher Searcher

	classifier  IntentClassifier
	rephraser   QueryRephraser
	embedder    QueryEmbedder
	answerer    AnswerGenerator
	webAnswerer WebAnswerer
	summarizer  Summarizer

	groups   repository.GroupRepository
	messages repository.MessageRepository
}

// NewRouter 创建消息路由器
func NewRouter(
	cfg Config,
	limiter RateLimiter,
	gate MemberChecker,
	resolver *TimeWindowResolver,
	searcher Searcher,
	classifier IntentClassifier,
	rephraser QueryRephraser,
	embedder QueryEmbedder,
	answerer AnswerGenerator,
	webAnswerer WebAnswerer,
	summarizer Summarizer,
	groups repository.GroupRepository,
	messages repository.MessageRepository,
) *Router {
	return &Router{
		cfg:         cfg,
		limiter:     limiter,
		gate:        gate,
		resolver:    resolver,
		searcher:    searcher,
		classifier:  classifier,
		rephraser:   rephraser,
		embedder:    embedder,
		answerer:    answerer,
		webAnswerer: webAnswerer,
		summarizer:  summarizer,
		groups:      groups,
		messages:    messages,
	}
}

// Route 处理一条入站消息，返回路由结果
// 限流拒绝静默丢弃；协作方失败作为可区分的错误终态上报，
// 绝不把失败重新解释成另一种意图
func (r *Router) Route(ctx context.Context, msg *InboundMessage) *Decision {
	ctx, span := tracer.Start(ctx, "routing.Router.Route")
	defer span.End()

	ctx = logger.WithContext(ctx, logger.GroupJIDKey, msg.GroupJID)
	ctx = logger.WithContext(ctx, logger.SenderJIDKey, msg.SenderJID)
	ctx = logger.WithContext(ctx, logger.MessageIDKey, msg.ID)
	log := logger.FromContext(ctx)

	// received -> admitted | rejected
	if !r.admit(ctx, msg) {
		log.Info("message rejected by rate limiter")
		return r.finish(IntentOther, &Decision{Outcome: OutcomeRateLimited})
	}

	// admitted -> classified
	// 分类只看消息文本，意图提示都在文本里；
	// 不在这里读历史，保证拒绝路径零次历史读取
	cls, err := r.classifier.Classify(ctx, msg.Text, nil)
	if err != nil {
		return r.fail(ctx, IntentOther, apperrors.Wrap(err, apperrors.CodeClassificationFailed, "intent classification failed"))
	}

	switch cls.Intent {
	case IntentAskQuestion:
		return r.finish(cls.Intent, r.routeQuestion(ctx, msg))
	case IntentSummarize:
		return r.finish(cls.Intent, r.routeSummary(ctx, msg, cls))
	case IntentAbout:
		return r.finish(cls.Intent, &Decision{Outcome: OutcomeAbout, Reply: aboutReply})
	default:
		return r.finish(cls.Intent, &Decision{Outcome: OutcomeDefault})
	}
}

// admit 执行发送者与群两级限流
// 拒绝时不回复，回复本身也会产生平台流量
func (r *Router) admit(ctx context.Context, msg *InboundMessage) bool {
	ok, err := r.limiter.Allow(ctx, "sender:"+msg.SenderJID, r.cfg.SenderLimit.Limit, r.cfg.SenderLimit.Window)
	if err != nil {
		// 后端故障放行，但必须在指标上可见
		metrics.RateLimiterErrorsTotal.WithLabelValues("sender").Inc()
		logger.FromContext(ctx).Warn("sender rate check failed, admitting", "error", err)
	} else if !ok {
		metrics.RateLimitRejectionsTotal.WithLabelValues("sender").Inc()
		return false
	}

	ok, err = r.limiter.Allow(ctx, "group:"+msg.GroupJID, r.cfg.GroupLimit.Limit, r.cfg.GroupLimit.Window)
	if err != nil {
		metrics.RateLimiterErrorsTotal.WithLabelValues("group").Inc()
		logger.FromContext(ctx).Warn("group rate check failed, admitting", "error", err)
	} else if !ok {
		metrics.RateLimitRejectionsTotal.WithLabelValues("group").Inc()
		return false
	}
	return true
}

// routeQuestion 处理知识库提问
func (r *Router) routeQuestion(ctx context.Context, msg *InboundMessage) *Decision {
	history := r.recentHistory(ctx, msg.GroupJID)
	query, err := r.rephraser.Rephrase(ctx, msg.Text, history)
	if err != nil {
		// 改写失败退回原始问题，意图本身不变
		logger.FromContext(ctx).Warn("query rephrase failed, using raw question", "error", err)
		query = msg.Text
	}

	emb, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return r.failDecision(ctx, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "query embedding failed"))
	}

	evidence, err := r.searcher.Search(ctx, retrieval.SearchInput{
		GroupJID:  msg.GroupJID,
		Query:     query,
		Embedding: emb,
		TopK:      r.cfg.SearchTopK,
	})
	if err != nil {
		return r.failDecision(ctx, err)
	}

	if len(evidence) == 0 {
		if reply := r.webFallback(ctx, msg.GroupJID, query); reply != "" {
			return &Decision{Outcome: OutcomeWebAnswer, Reply: reply}
		}
		return &Decision{Outcome: OutcomeNoKnowledge, Reply: noKnowledgeReply}
	}

	answer, err := r.answerer.Answer(ctx, query, evidence)
	if err != nil {
		return r.failDecision(ctx, apperrors.Wrap(err, apperrors.CodeAnswerFailed, "answer generation failed"))
	}

	return &Decision{Outcome: OutcomeAnswer, Reply: answer, Evidence: evidence}
}

// webFallback 语料无命中时的网页搜索兜底
// 仅对开启了网页搜索开关的群生效；兜底失败回落到固定话术，不升级成错误终态
func (r *Router) webFallback(ctx context.Context, groupJID, query string) string {
	if r.webAnswerer == nil {
		return ""
	}

	group, err := r.groups.GetByJID(ctx, groupJID)
	if err != nil || group == nil || !group.EnableWebSearch {
		return ""
	}

	reply, err := r.webAnswerer.AnswerFromWeb(ctx, query)
	if err != nil {
		logger.FromContext(ctx).Warn("web search fallback failed", "error", err)
		return ""
	}
	return reply
}

// routeSummary 处理摘要请求
// 先定位目标群再走成员校验，拒绝时零次历史读取
func (r *Router) routeSummary(ctx context.Context, msg *InboundMessage, cls *Classification) *Decision {
	group, err := r.resolveTargetGroup(ctx, msg.GroupJID, cls.TargetGroupHint)
	if err != nil {
		return r.failDecision(ctx, err)
	}
	if group == nil {
		// 群不存在、未托管或名字对不上，统一用同一个拒绝话术
		return &Decision{Outcome: OutcomeDenied, Reply: denialReply}
	}

	win := r.resolver.Resolve(cls.DurationHint)

	if !r.gate.IsMember(ctx, msg.SenderJID, group.JID) {
		return &Decision{Outcome: OutcomeDenied, Reply: denialReply}
	}

	msgs, err := r.messages.ListByWindow(ctx, group.JID, win.Start, win.End, win.MessageCap)
	if err != nil {
		return r.failDecision(ctx, apperrors.Wrap(err, apperrors.CodeSummaryFailed, "history fetch failed"))
	}

	summary, err := r.summarizer.Summarize(ctx, group, msgs)
	if err != nil {
		return r.failDecision(ctx, apperrors.Wrap(err, apperrors.CodeSummaryFailed, "summary generation failed"))
	}

	return &Decision{Outcome: OutcomeSummary, Reply: summary}
}

// resolveTargetGroup 定位摘要目标群
// 未点名时取当前群；点名时在托管群中按名字匹配。
// 仅托管群可作为摘要目标
func (r *Router) resolveTargetGroup(ctx context.Context, currentJID, hint string) (*entity.Group, error) {
	hint = strings.TrimSpace(hint)

	if hint == "" {
		group, err := r.groups.GetByJID(ctx, currentJID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeSummaryFailed, "group lookup failed")
		}
		if !group.IsManaged() {
			return nil, nil
		}
		return group, nil
	}

	managed, err := r.groups.ListManaged(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSummaryFailed, "managed group listing failed")
	}
	for _, g := range managed {
		if strings.EqualFold(g.Name, hint) {
			return g, nil
		}
	}
	return nil, nil
}

// recentHistory 取少量近期消息作为分类与改写的上下文
func (r *Router) recentHistory(ctx context.Context, groupJID string) []*entity.Message {
	depth := r.cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	msgs, err := r.messages.ListByWindow(ctx, groupJID, time.Time{}, r.resolver.now(), depth)
	if err != nil {
		logger.FromContext(ctx).Warn("history fetch for context failed", "error", err)
		return nil
	}
	return msgs
}

// fail 分类阶段的失败终态
func (r *Router) fail(ctx context.Context, intent Intent, err error) *Decision {
	return r.finish(intent, r.failDecision(ctx, err))
}

// failDecision 把协作方失败转换成可区分的错误终态
func (r *Router) failDecision(ctx context.Context, err error) *Decision {
	outcome := OutcomeError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome = OutcomeTimeout
		err = apperrors.Wrap(err, apperrors.CodeTimeout, "routing deadline exceeded")
	}
	logger.FromContext(ctx).Error("routing failed", "outcome", string(outcome), "error", err)
	return &Decision{Outcome: outcome, Err: err}
}

// finish 记录终态指标
func (r *Router) finish(intent Intent, d *Decision) *Decision {
	metrics.RouteDecisionsTotal.WithLabelValues(string(intent), string(d.Outcome)).Inc()
	return d
}
