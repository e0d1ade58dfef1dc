package service

import (
	"errors"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/token"

	"gorm.io/gorm"
)

// ErrSessionNotFound 表示会话不存在（尚无任何消息）。
var ErrSessionNotFound = errors.New("会话不存在")

// ConversationService 定义了会话管理的业务操作。
// 会话由消息隐式定义：NewSession 只返回一个新 ID，
// 首条消息写入之前该会话不会出现在列表里。
type ConversationService interface {
	ListSessions(userEmail string) ([]string, error)
	NewSession() string
	// GetHistory 返回会话的全部消息，调用方必须是会话所有者。
	GetHistory(sessionID string, user *model.User) ([]model.ChatMessage, error)
	DeleteSession(sessionID string, user *model.User) error
	// WipeHistory 删除用户自己的全部历史记录。
	WipeHistory(userEmail string) error
}

type conversationService struct {
	historyRepo repository.HistoryRepository
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(historyRepo repository.HistoryRepository) ConversationService {
	return &conversationService{historyRepo: historyRepo}
}

// ListSessions 返回用户的会话 ID 列表，按最近活跃降序。
func (s *conversationService) ListSessions(userEmail string) ([]string, error) {
	return s.historyRepo.ListSessions(userEmail)
}

// NewSession 生成一个新的会话 ID。
func (s *conversationService) NewSession() string {
	return token.GenerateRandomString(8)
}

// GetHistory 返回会话消息，非所有者按禁止访问处理。
func (s *conversationService) GetHistory(sessionID string, user *model.User) ([]model.ChatMessage, error) {
	if err := s.authorize(sessionID, user); err != nil {
		return nil, err
	}
	return s.historyRepo.FetchHistory(sessionID)
}

// DeleteSession 删除会话的全部消息，非所有者按禁止访问处理。
func (s *conversationService) DeleteSession(sessionID string, user *model.User) error {
	if err := s.authorize(sessionID, user); err != nil {
		return err
	}
	if err := s.historyRepo.DeleteSession(sessionID); err != nil {
		return err
	}
	log.Infof("[ConversationService] 会话已删除, SessionID: %s, User: %s", sessionID, user.Email)
	return nil
}

// WipeHistory 清空用户自己的全部历史。
func (s *conversationService) WipeHistory(userEmail string) error {
	if err := s.historyRepo.WipeHistory(userEmail); err != nil {
		return err
	}
	log.Infof("[ConversationService] 用户历史已清空, User: %s", userEmail)
	return nil
}

// authorize 校验会话归属。Admin 不豁免：历史是用户私有数据。
func (s *conversationService) authorize(sessionID string, user *model.User) error {
	owner, err := s.historyRepo.SessionOwner(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if owner != user.Email {
		return ErrSessionForbidden
	}
	return nil
}
