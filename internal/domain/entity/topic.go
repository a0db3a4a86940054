package entity

import (
	"time"

	"github.com/lib/pq"
)

// KBTopic 知识库话题实体
// 每个话题由一段群聊讨论蒸馏而成，StartID/EndID 标记源消息区间
type KBTopic struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	GroupJID  string         `gorm:"size:128;not null;index" json:"group_jid"`
	Subject   string         `gorm:"size:512;not null" json:"subject"`
	Summary   string         `gorm:"type:text;not null" json:"summary"`
	Speakers  pq.StringArray `gorm:"type:text[]" json:"speakers,omitempty"`
	StartID   string         `gorm:"size:128;not null" json:"start_id"`
	EndID     string         `gorm:"size:128;not null" json:"end_id"`
	StartTime time.Time      `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time      `gorm:"not null" json:"end_time"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (KBTopic) TableName() string {
	return "kb_topics"
}

// SourceKey 返回话题的源消息区间标识，用于检索结果去重
func (t *KBTopic) SourceKey() string {
	return t.StartID + ":" + t.EndID
}
