package repository

import (
	"fmt"
	"testing"
	"time"

	"medsmart-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试用独立命名的内存库，cache=shared 保证连接池内的连接看到同一份数据
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.ChatMessage{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func TestHistoryAppendAndFetchOrder(t *testing.T) {
	repo := NewHistoryRepository(newTestDB(t))

	require.NoError(t, repo.AppendMessage("s1", "alice@example.com", model.MessageRoleUser, "探视时间是几点？"))
	require.NoError(t, repo.AppendMessage("s1", "alice@example.com", model.MessageRoleAssistant, "每天 14:00 到 18:00。"))
	require.NoError(t, repo.AppendMessage("s1", "alice@example.com", model.MessageRoleUser, "周末也一样吗？"))

	messages, err := repo.FetchHistory("s1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, model.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "探视时间是几点？", messages[0].Content)
	assert.Equal(t, model.MessageRoleAssistant, messages[1].Role)
	assert.Equal(t, "周末也一样吗？", messages[2].Content)
}

func TestHistoryListSessions(t *testing.T) {
	repo := NewHistoryRepository(newTestDB(t))

	require.NoError(t, repo.AppendMessage("s1", "alice@example.com", model.MessageRoleUser, "first"))
	require.NoError(t, repo.AppendMessage("s2", "alice@example.com", model.MessageRoleUser, "second"))
	require.NoError(t, repo.AppendMessage("s3", "bob@example.com", model.MessageRoleUser, "other user"))

	sessions, err := repo.ListSessions("alice@example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, sessions)
}

func TestHistoryListSessionsOrderedByRecentActivity(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepository(db)

	base := time.Now().Add(-time.Hour)
	write := func(session string, at time.Time) {
		require.NoError(t, db.Create(&model.ChatMessage{
			SessionID: session,
			UserEmail: "alice@example.com",
			Role:      model.MessageRoleUser,
			Content:   "msg",
			Timestamp: at,
		}).Error)
	}
	// 写入顺序 A、B、A：A 的最近活动晚于 B，应排在前面
	write("sA", base)
	write("sB", base.Add(time.Minute))
	write("sA", base.Add(2*time.Minute))

	sessions, err := repo.ListSessions("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"sA", "sB"}, sessions)
}

func TestHistorySessionOwner(t *testing.T) {
	repo := NewHistoryRepository(newTestDB(t))

	require.NoError(t, repo.AppendMessage("s1", "alice@example.com", model.MessageRoleUser, "hi"))

	owner, err := repo.SessionOwner("s1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", owner)

	_, err = repo.SessionOwner("missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestHistoryDeleteSessionIsIsolated(t *testing.T) {
	repo := NewHistoryRepository(newTestDB(t))

	require.NoError(t, repo.AppendMessage("s1", "alice@example.com", model.MessageRoleUser, "keep me out"))
	require.NoError(t, repo.AppendMessage("s2", "alice@example.com", model.MessageRoleUser, "survivor"))

	require.NoError(t, repo.DeleteSession("s1"))

	messages, err := repo.FetchHistory("s1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	messages, err = repo.FetchHistory("s2")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestHistoryWipeOnlyTargetUser(t *testing.T) {
	repo := NewHistoryRepository(newTestDB(t))

	require.NoError(t, repo.AppendMessage("s1", "alice@example.com", model.MessageRoleUser, "mine"))
	require.NoError(t, repo.AppendMessage("s2", "bob@example.com", model.MessageRoleUser, "his"))

	require.NoError(t, repo.WipeHistory("alice@example.com"))

	sessions, err := repo.ListSessions("alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	sessions, err = repo.ListSessions("bob@example.com")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
