package service

import (
	"context"
	"testing"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRetriever 返回预置的检索结果。
type fakeRetriever struct {
	results []model.RetrievedChunk
}

func (f *fakeRetriever) Search(ctx context.Context, query string, topK int) ([]model.RetrievedChunk, error) {
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

// fakeLLM 记录收到的消息并返回固定回答。
type fakeLLM struct {
	lastMessages []llm.Message
	reply        string
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.lastMessages = messages
	return f.reply, nil
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	f.lastMessages = messages
	return writer.WriteMessage(1, []byte(f.reply))
}

func retrieved(content, source string, page int) model.RetrievedChunk {
	return model.RetrievedChunk{
		Chunk: model.DocumentChunk{
			PageContent: content,
			Metadata:    model.ChunkMetadata{Source: source, Page: &page},
		},
		Score: 0.9,
	}
}

func TestAnswerSystemMessageCarriesRoleAndContext(t *testing.T) {
	llmClient := &fakeLLM{reply: "每天 14:00 到 18:00。"}
	retr := &fakeRetriever{results: []model.RetrievedChunk{
		retrieved("探视时间为每天 14:00 至 18:00。", "visiting.pdf", 2),
	}}
	historyRepo := repository.NewHistoryRepository(newTestDB(t))
	svc := NewAnswerService(retr, llmClient, historyRepo, 3)

	answer, sources, err := svc.Answer(context.Background(), "探视时间是几点？", model.RolePatient)

	require.NoError(t, err)
	assert.Equal(t, "每天 14:00 到 18:00。", answer)

	require.NotEmpty(t, llmClient.lastMessages)
	sys := llmClient.lastMessages[0]
	assert.Equal(t, "system", sys.Role)
	assert.Contains(t, sys.Content, "User role: Patient")
	assert.Contains(t, sys.Content, "do NOT reveal private medical records of others")
	assert.Contains(t, sys.Content, "探视时间为每天 14:00 至 18:00。")
	assert.Contains(t, sys.Content, "visiting.pdf")

	// 最后一条是用户的原始提问
	last := llmClient.lastMessages[len(llmClient.lastMessages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "探视时间是几点？", last.Content)

	require.Len(t, sources, 1)
	assert.Equal(t, "visiting.pdf", sources[0].Source)
	require.NotNil(t, sources[0].Page)
	assert.Equal(t, 2, *sources[0].Page)
	assert.Equal(t, 0.9, sources[0].Score)
}

func TestAnswerRoleChangesInstruction(t *testing.T) {
	llmClient := &fakeLLM{reply: "ok"}
	svc := NewAnswerService(&fakeRetriever{}, llmClient, repository.NewHistoryRepository(newTestDB(t)), 3)

	_, _, err := svc.Answer(context.Background(), "q", model.RoleStaff)
	require.NoError(t, err)

	assert.Contains(t, llmClient.lastMessages[0].Content, "User role: Staff")
}

func TestAnswerNoResultsUsesPlaceholder(t *testing.T) {
	llmClient := &fakeLLM{reply: "抱歉，没有找到相关资料。"}
	svc := NewAnswerService(&fakeRetriever{}, llmClient, repository.NewHistoryRepository(newTestDB(t)), 3)

	_, sources, err := svc.Answer(context.Background(), "q", model.RolePatient)

	require.NoError(t, err)
	assert.Empty(t, sources)
	assert.Contains(t, llmClient.lastMessages[0].Content, "<<REF>>")
	assert.Contains(t, llmClient.lastMessages[0].Content, "<<END>>")
}

func TestAskPersistsExchange(t *testing.T) {
	llmClient := &fakeLLM{reply: "answer one"}
	historyRepo := repository.NewHistoryRepository(newTestDB(t))
	svc := NewAnswerService(&fakeRetriever{}, llmClient, historyRepo, 3)
	user := &model.User{Email: "alice@example.com", Role: model.RolePatient}

	result, err := svc.Ask(context.Background(), user, "", "question one")
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionID)
	assert.Equal(t, "answer one", result.Answer)

	messages, err := historyRepo.FetchHistory(result.SessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "question one", messages[0].Content)
	assert.Equal(t, model.MessageRoleAssistant, messages[1].Role)
	assert.Equal(t, "answer one", messages[1].Content)

	// 第二轮提问携带第一轮的历史
	llmClient.reply = "answer two"
	result2, err := svc.Ask(context.Background(), user, result.SessionID, "question two")
	require.NoError(t, err)
	assert.Equal(t, result.SessionID, result2.SessionID)
	// system + 两条历史 + 当前提问
	assert.Len(t, llmClient.lastMessages, 4)
}

func TestAskRejectsForeignSession(t *testing.T) {
	llmClient := &fakeLLM{reply: "ok"}
	historyRepo := repository.NewHistoryRepository(newTestDB(t))
	svc := NewAnswerService(&fakeRetriever{}, llmClient, historyRepo, 3)

	alice := &model.User{Email: "alice@example.com", Role: model.RolePatient}
	bob := &model.User{Email: "bob@example.com", Role: model.RolePatient}

	result, err := svc.Ask(context.Background(), alice, "", "alice 的问题")
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), bob, result.SessionID, "bob 想偷看")
	assert.ErrorIs(t, err, ErrSessionForbidden)

	// alice 的会话未被污染
	messages, err := historyRepo.FetchHistory(result.SessionID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}
