// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 消息作者角色，与聊天补全 API 的 role 字段一致。
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// ChatMessage 对应于数据库中的 'chat_history' 表。
// 一条消息一经写入即不可变，会话本身没有独立的表：
// 一个会话由携带相同 session_id 的消息集合隐式定义。
type ChatMessage struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// SessionID 是消息所属会话的短随机标识。
	SessionID string `gorm:"type:varchar(16);index;not null" json:"sessionId"`
	// UserEmail 是会话所有者的邮箱（统一使用 user_email 列名）。
	UserEmail string `gorm:"type:varchar(255);index;not null" json:"userEmail"`
	// Role 标识消息作者："user" 或 "assistant"。
	Role    string `gorm:"type:varchar(20);not null" json:"role"`
	Content string `gorm:"type:text;not null" json:"content"`
	// Timestamp 由写入方设置，会话内消息按该字段排序。
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatMessage) TableName() string {
	return "chat_history"
}
