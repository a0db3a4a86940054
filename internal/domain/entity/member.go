package entity

import (
	"time"
)

// GroupMember 群成员实体
// 记录发送者与群的隶属关系，作为成员校验的本地快路径
type GroupMember struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupJID  string     `gorm:"size:128;not null;uniqueIndex:idx_group_sender,priority:1" json:"group_jid"`
	SenderJID string     `gorm:"size:128;not null;uniqueIndex:idx_group_sender,priority:2" json:"sender_jid"`
	PushName  string     `gorm:"size:256" json:"push_name,omitempty"`
	IsAdmin   bool       `gorm:"default:false" json:"is_admin"`
	OptedOut  bool       `gorm:"default:false" json:"opted_out"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (GroupMember) TableName() string {
	return "group_members"
}

// IsActive 判断成员当前是否在群内
func (m *GroupMember) IsActive() bool {
	return m != nil && m.LeftAt == nil
}
