package service

import (
	"context"
	"errors"
	"fmt"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/llm"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/token"

	"gorm.io/gorm"
)

// ErrSessionForbidden 表示会话存在但不属于当前用户。
var ErrSessionForbidden = errors.New("无权访问该会话")

// SourceRef 是回答引用的一个来源片段。
type SourceRef struct {
	Source  string  `json:"source"`
	Page    *int    `json:"page"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// AnswerResult 是一次问答的完整结果。
type AnswerResult struct {
	SessionID string      `json:"sessionId"`
	Answer    string      `json:"answer"`
	Sources   []SourceRef `json:"sources"`
}

// AnswerService 实现了非流式的一问一答：检索、角色限定提示、生成、落库。
type AnswerService interface {
	// Ask 在指定会话中回答一个问题。sessionID 为空时开启新会话。
	Ask(ctx context.Context, user *model.User, sessionID, query string) (*AnswerResult, error)
	// Answer 是不带会话语义的纯问答，供 Ask 与测试复用。
	Answer(ctx context.Context, query, role string) (string, []SourceRef, error)
}

type answerService struct {
	retriever   Retriever
	llmClient   llm.Client
	historyRepo repository.HistoryRepository
	topK        int
}

// NewAnswerService 创建一个新的 AnswerService 实例。
func NewAnswerService(retriever Retriever, llmClient llm.Client, historyRepo repository.HistoryRepository, topK int) AnswerService {
	if topK <= 0 {
		topK = 3
	}
	return &answerService{
		retriever:   retriever,
		llmClient:   llmClient,
		historyRepo: historyRepo,
		topK:        topK,
	}
}

// Ask 在会话语境下回答问题，并把问答双方的消息写入历史。
func (s *answerService) Ask(ctx context.Context, user *model.User, sessionID, query string) (*AnswerResult, error) {
	var history []model.ChatMessage

	if sessionID == "" {
		sessionID = token.GenerateRandomString(8)
	} else {
		owner, err := s.historyRepo.SessionOwner(sessionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			if owner != user.Email {
				return nil, ErrSessionForbidden
			}
			history, err = s.historyRepo.FetchHistory(sessionID)
			if err != nil {
				return nil, err
			}
		}
		// 会话尚无消息时按新会话处理，沿用客户端给定的 ID
	}

	answer, sources, err := s.answerWithHistory(ctx, query, user.Role, history)
	if err != nil {
		return nil, err
	}

	// 先记提问再记回答，保证会话内时间序与展示序一致
	if err := s.historyRepo.AppendMessage(sessionID, user.Email, model.MessageRoleUser, query); err != nil {
		return nil, fmt.Errorf("保存提问失败: %w", err)
	}
	if err := s.historyRepo.AppendMessage(sessionID, user.Email, model.MessageRoleAssistant, answer); err != nil {
		return nil, fmt.Errorf("保存回答失败: %w", err)
	}

	return &AnswerResult{SessionID: sessionID, Answer: answer, Sources: sources}, nil
}

// Answer 执行一次不落库的问答。
func (s *answerService) Answer(ctx context.Context, query, role string) (string, []SourceRef, error) {
	return s.answerWithHistory(ctx, query, role, nil)
}

func (s *answerService) answerWithHistory(ctx context.Context, query, role string, history []model.ChatMessage) (string, []SourceRef, error) {
	// 1. 检索最相似的分块
	results, err := s.retriever.Search(ctx, query, s.topK)
	if err != nil {
		return "", nil, fmt.Errorf("检索上下文失败: %w", err)
	}
	log.Infof("[AnswerService] 检索到 %d 个相关分块", len(results))

	// 2. 组装角色限定的 system 消息与完整对话
	systemMsg := buildSystemMessage(role, buildContextText(results))
	messages := composeMessages(systemMsg, history, query)

	// 3. 调用 LLM 生成回答
	answer, err := s.llmClient.Complete(ctx, messages, buildGenerationParams())
	if err != nil {
		return "", nil, fmt.Errorf("生成回答失败: %w", err)
	}

	// 4. 引用来源随答案一并返回，便于前端展示出处
	sources := make([]SourceRef, 0, len(results))
	for _, r := range results {
		sources = append(sources, SourceRef{
			Source:  r.Chunk.Metadata.Source,
			Page:    r.Chunk.Metadata.Page,
			Snippet: snippet(r.Chunk.PageContent, 200),
			Score:   r.Score,
		})
	}
	return answer, sources, nil
}

// snippet 截取分块开头的若干 rune 作为来源预览。
func snippet(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "…"
}
