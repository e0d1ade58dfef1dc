package service

import (
	"testing"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationOwnershipChecks(t *testing.T) {
	historyRepo := repository.NewHistoryRepository(newTestDB(t))
	svc := NewConversationService(historyRepo)

	alice := &model.User{Email: "alice@example.com", Role: model.RolePatient}
	bob := &model.User{Email: "bob@example.com", Role: model.RoleStaff}
	admin := &model.User{Email: "admin@example.com", Role: model.RoleAdmin}

	require.NoError(t, historyRepo.AppendMessage("s1", alice.Email, model.MessageRoleUser, "hi"))

	// 所有者可以读取
	messages, err := svc.GetHistory("s1", alice)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	// 其他用户与 Admin 都不能读取别人的会话
	_, err = svc.GetHistory("s1", bob)
	assert.ErrorIs(t, err, ErrSessionForbidden)
	_, err = svc.GetHistory("s1", admin)
	assert.ErrorIs(t, err, ErrSessionForbidden)

	// 不存在的会话
	_, err = svc.GetHistory("missing", alice)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 删除同样受所有权保护
	assert.ErrorIs(t, svc.DeleteSession("s1", bob), ErrSessionForbidden)
	require.NoError(t, svc.DeleteSession("s1", alice))

	messages, err = historyRepo.FetchHistory("s1")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestNewSessionIDsAreUnique(t *testing.T) {
	svc := NewConversationService(repository.NewHistoryRepository(newTestDB(t)))

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := svc.NewSession()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
