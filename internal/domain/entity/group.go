// Package entity 定义领域实体
package entity

import (
	"time"
)

// Group 群组实体
// 只有 Managed 为 true 的群才会触发机器人处理
type Group struct {
	JID             string    `gorm:"primaryKey;size:128" json:"jid"`
	Name            string    `gorm:"size:256" json:"name"`
	Managed         bool      `gorm:"default:false;index" json:"managed"`
	Community       string    `gorm:"size:128;index" json:"community,omitempty"`
	OwnerJID        string    `gorm:"size:128" json:"owner_jid,omitempty"`
	Notify          bool      `gorm:"default:true" json:"notify"`
	EnableWebSearch bool      `gorm:"default:false" json:"enable_web_search"`
	ForwardJID      string    `gorm:"size:128" json:"forward_jid,omitempty"`
	LastSummarySync time.Time `json:"last_summary_sync,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Group) TableName() string {
	return "groups"
}

// IsManaged 判断群是否处于托管状态
func (g *Group) IsManaged() bool {
	return g != nil && g.Managed
}
