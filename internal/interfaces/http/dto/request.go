package dto

import "time"

// WebhookMessageRequest 网关推送的群消息载荷
type WebhookMessageRequest struct {
	MessageID string    `json:"message_id" binding:"required"`
	GroupJID  string    `json:"group_jid" binding:"required"`
	SenderJID string    `json:"sender_jid" binding:"required"`
	PushName  string    `json:"push_name"`
	Text      string    `json:"text"`
	QuotedID  string    `json:"quoted_id"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookMessageResponse 路由处理结果
type WebhookMessageResponse struct {
	MessageID string `json:"message_id"`
	Outcome   string `json:"outcome"`
	Replied   bool   `json:"replied"`
}

// GroupView 群组管理视图
type GroupView struct {
	JID             string     `json:"jid"`
	Name            string     `json:"name"`
	Managed         bool       `json:"managed"`
	EnableWebSearch bool       `json:"enable_web_search"`
	Community       string     `json:"community,omitempty"`
	OwnerJID        string     `json:"owner_jid,omitempty"`
	LastSummarySync *time.Time `json:"last_summary_sync,omitempty"`
}

// GroupManagedRequest 设置群托管状态
type GroupManagedRequest struct {
	Managed *bool `json:"managed" binding:"required"`
}

// GroupWebSearchRequest 设置群的网页搜索兜底开关
type GroupWebSearchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// MemberOptOutRequest 设置成员摘要匿名偏好
type MemberOptOutRequest struct {
	SenderJID string `json:"sender_jid" binding:"required"`
	OptedOut  *bool  `json:"opted_out" binding:"required"`
}

// RosterSyncResponse 花名册同步结果
type RosterSyncResponse struct {
	GroupJID string `json:"group_jid"`
	Members  int    `json:"members"`
}

// SummaryJobRequest 手动触发群摘要任务
type SummaryJobRequest struct {
	GroupJID string `json:"group_jid" binding:"required"`
	// Hours 回溯的小时数，0 表示默认窗口
	Hours float64 `json:"hours"`
	// TargetJID 摘要投递目标，空表示发回群里
	TargetJID string `json:"target_jid"`
}

// SummaryJobResponse 摘要任务受理结果
type SummaryJobResponse struct {
	JobID    string `json:"job_id"`
	StreamID string `json:"stream_id"`
}

// TopicIngestRequest 手动触发话题切分入库
type TopicIngestRequest struct {
	GroupJID string    `json:"group_jid" binding:"required"`
	Since    time.Time `json:"since" binding:"required"`
	Until    time.Time `json:"until"`
}

// TopicIngestResponse 话题入库受理结果
type TopicIngestResponse struct {
	StreamID string `json:"stream_id"`
}

// LoginRequest 管理后台登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 管理后台登录响应
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}
