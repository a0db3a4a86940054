package entity

import (
	"time"
)

// Message 群聊消息实体
type Message struct {
	ID        string    `gorm:"primaryKey;size:128" json:"id"`
	GroupJID  string    `gorm:"size:128;not null;index:idx_group_time,priority:1" json:"group_jid"`
	SenderJID string    `gorm:"size:128;not null;index" json:"sender_jid"`
	PushName  string    `gorm:"size:256" json:"push_name,omitempty"`
	Text      string    `gorm:"type:text" json:"text"`
	QuotedID  string    `gorm:"size:128" json:"quoted_id,omitempty"`
	Timestamp time.Time `gorm:"not null;index:idx_group_time,priority:2" json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
