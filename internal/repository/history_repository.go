// Package repository 提供了数据访问层的实现。
package repository

import (
	"time"

	"medsmart-go/internal/model"

	"gorm.io/gorm"
)

// HistoryRepository 定义了聊天历史记录的操作接口。
// 会话没有独立的表：一个会话由携带相同 session_id 的消息集合隐式定义，
// 因此"删除会话"等价于删除该 session_id 下的全部消息。
type HistoryRepository interface {
	AppendMessage(sessionID, userEmail, role, content string) error
	FetchHistory(sessionID string) ([]model.ChatMessage, error)
	ListSessions(userEmail string) ([]string, error)
	SessionOwner(sessionID string) (string, error)
	DeleteSession(sessionID string) error
	WipeHistory(userEmail string) error
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository 创建一个新的 HistoryRepository 实例。
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// AppendMessage 向历史表追加一条消息，时间戳由服务端设置。
func (r *historyRepository) AppendMessage(sessionID, userEmail, role, content string) error {
	msg := &model.ChatMessage{
		SessionID: sessionID,
		UserEmail: userEmail,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	return r.db.Create(msg).Error
}

// FetchHistory 获取一个会话的全部消息，按时间升序。
func (r *historyRepository) FetchHistory(sessionID string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	// 同一毫秒内写入的两条消息按自增 ID 决出先后
	err := r.db.Where("session_id = ?", sessionID).Order("timestamp ASC, id ASC").Find(&messages).Error
	return messages, err
}

// ListSessions 返回用户的全部会话 ID，按最近活跃时间降序。
func (r *historyRepository) ListSessions(userEmail string) ([]string, error) {
	var sessionIDs []string
	err := r.db.Model(&model.ChatMessage{}).
		Where("user_email = ?", userEmail).
		Group("session_id").
		Order("MAX(timestamp) DESC").
		Pluck("session_id", &sessionIDs).Error
	return sessionIDs, err
}

// SessionOwner 返回会话所有者的邮箱；会话不存在时返回 gorm.ErrRecordNotFound。
func (r *historyRepository) SessionOwner(sessionID string) (string, error) {
	var msg model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).First(&msg).Error
	if err != nil {
		return "", err
	}
	return msg.UserEmail, nil
}

// DeleteSession 删除一个会话的全部消息。
func (r *historyRepository) DeleteSession(sessionID string) error {
	return r.db.Where("session_id = ?", sessionID).Delete(&model.ChatMessage{}).Error
}

// WipeHistory 清空一个用户的全部历史记录。
func (r *historyRepository) WipeHistory(userEmail string) error {
	return r.db.Where("user_email = ?", userEmail).Delete(&model.ChatMessage{}).Error
}
