// Package routing 实现入站消息的意图路由状态机
package routing

import (
	"time"

	"groupchat-ai-bot/internal/application/retrieval"
)

// Intent 消息意图
type Intent string

const (
	// IntentAskQuestion 知识库提问
	IntentAskQuestion Intent = "ask_question"
	// IntentSummarize 群聊摘要请求
	IntentSummarize Intent = "summarize"
	// IntentAbout 询问机器人自身
	IntentAbout Intent = "about"
	// IntentOther 其他闲聊
	IntentOther Intent = "other"
)

// Outcome 路由终态
type Outcome string

const (
	// OutcomeRateLimited 限流拒绝，静默丢弃不回复
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeAnswer 检索到证据并生成了回答
	OutcomeAnswer Outcome = "answer"
	// OutcomeNoKnowledge 语料为空或无命中
	OutcomeNoKnowledge Outcome = "no_knowledge"
	// OutcomeWebAnswer 语料无命中，回答来自网页搜索兜底
	OutcomeWebAnswer Outcome = "web_answer"
	// OutcomeSummary 摘要已生成
	OutcomeSummary Outcome = "summary"
	// OutcomeDenied 摘要请求被成员校验拒绝，返回固定话术
	OutcomeDenied Outcome = "denied"
	// OutcomeAbout 机器人自述
	OutcomeAbout Outcome = "about"
	// OutcomeDefault 默认回复
	OutcomeDefault Outcome = "default"
	// OutcomeError 协作方失败，错误对上游可区分
	OutcomeError Outcome = "error"
	// OutcomeTimeout 处理超时
	OutcomeTimeout Outcome = "timeout"
)

// InboundMessage 入站群聊消息
type InboundMessage struct {
	ID        string
	GroupJID  string
	SenderJID string
	PushName  string
	Text      string
	Timestamp time.Time
}

// Classification 意图分类结果，由注入的分类协作方产出
type Classification struct {
	Intent Intent
	// TargetGroupHint 摘要请求中点名的目标群名，空表示当前群
	TargetGroupHint string
	// DurationHint 已解析好的时间窗口时长，0 表示未给出
	DurationHint time.Duration
}

// Decision 单条消息的路由结果
type Decision struct {
	Outcome Outcome
	// Reply 需要发回群里的文本，空表示不回复
	Reply string
	// Evidence 提问意图下的排序证据集
	Evidence []retrieval.SearchResult
	// Err 终态为 error/timeout 时携带可区分的失败原因
	Err error
}

// Window 已解析的摘要时间窗口
type Window struct {
	Start time.Time
	End   time.Time
	// MessageCap 取历史消息的条数上限
	MessageCap int
}
