package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/llm"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/token"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// ChatService 定义了流式聊天操作的接口。
type ChatService interface {
	// StreamResponse 在指定会话中流式回答问题，返回实际使用的会话 ID。
	StreamResponse(ctx context.Context, sessionID, query string, user *model.User, ws *websocket.Conn, shouldStop func() bool) (string, error)
}

type chatService struct {
	retriever   Retriever
	llmClient   llm.Client
	historyRepo repository.HistoryRepository
	topK        int
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(retriever Retriever, llmClient llm.Client, historyRepo repository.HistoryRepository, topK int) ChatService {
	if topK <= 0 {
		topK = 3
	}
	return &chatService{
		retriever:   retriever,
		llmClient:   llmClient,
		historyRepo: historyRepo,
		topK:        topK,
	}
}

// StreamResponse 协调 RAG 流程并流式传输 LLM 响应。
// 与 AnswerService.Ask 的差别只在传输方式：分块经 websocket 下发，
// 完整答案在流结束后一次性写入历史。
func (s *chatService) StreamResponse(ctx context.Context, sessionID, query string, user *model.User, ws *websocket.Conn, shouldStop func() bool) (string, error) {
	// 1. 确定会话并加载历史
	var history []model.ChatMessage
	if sessionID == "" {
		sessionID = token.GenerateRandomString(8)
	} else {
		owner, err := s.historyRepo.SessionOwner(sessionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		if err == nil {
			if owner != user.Email {
				return "", ErrSessionForbidden
			}
			history, err = s.historyRepo.FetchHistory(sessionID)
			if err != nil {
				log.Errorf("[ChatService] 加载会话历史失败, SessionID: %s, Error: %v", sessionID, err)
				history = nil
			}
		}
	}

	// 2. 检索上下文并组装消息
	results, err := s.retriever.Search(ctx, query, s.topK)
	if err != nil {
		return sessionID, fmt.Errorf("检索上下文失败: %w", err)
	}
	systemMsg := buildSystemMessage(user.Role, buildContextText(results))
	messages := composeMessages(systemMsg, history, query)

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	// 3. 流式生成
	if err := s.llmClient.StreamChatMessages(ctx, messages, buildGenerationParams(), interceptor); err != nil {
		return sessionID, err
	}

	// 4. 发送完成通知，并把完整的一问一答写入历史
	sendCompletion(ws, sessionID)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 流式响应已经成功送达，落库失败只记日志不打断客户端
		if err := s.historyRepo.AppendMessage(sessionID, user.Email, model.MessageRoleUser, query); err != nil {
			log.Errorf("[ChatService] 保存提问失败, SessionID: %s, Error: %v", sessionID, err)
		} else if err := s.historyRepo.AppendMessage(sessionID, user.Email, model.MessageRoleAssistant, fullAnswer); err != nil {
			log.Errorf("[ChatService] 保存回答失败, SessionID: %s, Error: %v", sessionID, err)
		}
	}

	return sessionID, nil
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON。
func sendCompletion(ws *websocket.Conn, sessionID string) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"sessionId": sessionID,
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
