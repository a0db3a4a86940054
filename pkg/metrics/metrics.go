// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "groupchat_bot"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 业务指标 - 消息路由
	RouteDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Total number of route decisions by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "rate_limit_rejections_total",
			Help:      "Messages dropped by the sliding window rate limiter",
		},
		[]string{"scope"},
	)

	RateLimiterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "rate_limiter_errors_total",
			Help:      "Rate limiter backend failures that resulted in fail-open admission",
		},
		[]string{"scope"},
	)

	// 业务指标 - 成员校验
	MembershipChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "checks_total",
			Help:      "Membership gate checks by result source",
		},
		[]string{"source", "result"},
	)

	// 业务指标 - 混合检索
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Hybrid search duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"index"},
	)

	SearchCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "candidates",
			Help:      "Candidate counts per search by index",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"index"},
	)

	// 业务指标 - 群总结
	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "total",
			Help:      "Group summaries by delivery status",
		},
		[]string{"status"},
	)

	SummaryMessagesFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "messages_fetched",
			Help:      "History messages fetched per summary request",
			Buckets:   []float64{0, 10, 30, 50, 100},
		},
	)

	// 业务指标 - 内容巡查
	LinkSpamAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "link_spam_alerts_total",
			Help:      "Group invite link spam alerts delivered",
		},
	)

	// 业务指标 - 知识库导入
	TopicsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "topics_total",
			Help:      "Knowledge base topics ingested",
		},
	)
)
