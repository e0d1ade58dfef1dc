package handler

import (
	"errors"
	"net/http"

	"medsmart-go/internal/model"
	"medsmart-go/internal/service"
	"medsmart-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 负责处理会话管理相关的 API 请求。
type ConversationHandler struct {
	conversationService service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler 实例。
func NewConversationHandler(conversationService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// currentUser 从上下文取出 AuthMiddleware 注入的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	user, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return nil, false
	}
	currentUser, ok := user.(*model.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
		return nil, false
	}
	return currentUser, true
}

// ListSessions 返回当前用户的会话 ID 列表，按最近活跃降序。
func (h *ConversationHandler) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sessions, err := h.conversationService.ListSessions(user.Email)
	if err != nil {
		log.Errorf("ListSessions failed for '%s': %v", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取会话列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"sessions": sessions},
	})
}

// NewSession 开启一个新会话，返回新的会话 ID。
// 会话在写入第一条消息前不占用任何存储。
func (h *ConversationHandler) NewSession(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"sessionId": h.conversationService.NewSession()},
	})
}

// GetHistory 返回一个会话的全部消息，按时间升序。
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID := c.Param("sessionId")

	messages, err := h.conversationService.GetHistory(sessionID, user)
	if err != nil {
		h.writeSessionError(c, sessionID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"sessionId": sessionID, "messages": messages},
	})
}

// DeleteSession 删除一个会话的全部消息。
func (h *ConversationHandler) DeleteSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID := c.Param("sessionId")

	if err := h.conversationService.DeleteSession(sessionID, user); err != nil {
		h.writeSessionError(c, sessionID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "会话已删除",
	})
}

// WipeHistory 清空当前用户的全部历史记录。
func (h *ConversationHandler) WipeHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.conversationService.WipeHistory(user.Email); err != nil {
		log.Errorf("WipeHistory failed for '%s': %v", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "清空历史失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "历史记录已清空",
	})
}

// writeSessionError 将会话相关的业务错误映射为 HTTP 状态码。
func (h *ConversationHandler) writeSessionError(c *gin.Context, sessionID string, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
	case errors.Is(err, service.ErrSessionForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "无权访问该会话"})
	default:
		log.Errorf("Session operation failed, SessionID: %s, Error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "会话操作失败"})
	}
}
