package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMailer 记录发出的验证码，不做真实投递。
type fakeMailer struct {
	lastTo   string
	lastCode string
	sent     int
	fail     bool
}

func (m *fakeMailer) SendOTP(to, code string) error {
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.lastTo = to
	m.lastCode = code
	m.sent++
	return nil
}

func newTestResetService(t *testing.T) (ResetService, UserService, *fakeMailer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	userRepo := repository.NewUserRepository(newTestDB(t))
	otpRepo := repository.NewOTPRepository(redisClient)
	userSvc := newTestUserServiceWithRepo(userRepo)
	mail := &fakeMailer{}
	return NewResetService(userRepo, otpRepo, userSvc, mail), userSvc, mail, mr
}

func TestRequestResetUnknownEmail(t *testing.T) {
	svc, _, mail, _ := newTestResetService(t)

	err := svc.RequestReset(context.Background(), "ghost@example.com")

	assert.ErrorIs(t, err, ErrResetNotAllowed)
	assert.Zero(t, mail.sent)
}

func TestRequestResetSendsCode(t *testing.T) {
	svc, userSvc, mail, _ := newTestResetService(t)
	registerUser(t, userSvc, "alice@example.com", "oldpass123")

	require.NoError(t, svc.RequestReset(context.Background(), "alice@example.com"))

	assert.Equal(t, "alice@example.com", mail.lastTo)
	assert.Len(t, mail.lastCode, 6)
}

func TestRequestResetCooldown(t *testing.T) {
	svc, userSvc, mail, mr := newTestResetService(t)
	registerUser(t, userSvc, "alice@example.com", "oldpass123")

	require.NoError(t, svc.RequestReset(context.Background(), "alice@example.com"))

	// 冷却期内的重发被拒绝，并给出剩余时间
	err := svc.RequestReset(context.Background(), "alice@example.com")
	var cooldown *ErrCooldownActive
	require.ErrorAs(t, err, &cooldown)
	assert.Greater(t, cooldown.Remaining, time.Duration(0))
	assert.Equal(t, 1, mail.sent)

	// 冷却结束后可以重发，新验证码覆盖旧的
	mr.FastForward(61 * time.Second)
	require.NoError(t, svc.RequestReset(context.Background(), "alice@example.com"))
	assert.Equal(t, 2, mail.sent)
}

func TestRequestResetMailFailureReleasesCooldown(t *testing.T) {
	svc, userSvc, mail, _ := newTestResetService(t)
	registerUser(t, userSvc, "alice@example.com", "oldpass123")
	mail.fail = true

	err := svc.RequestReset(context.Background(), "alice@example.com")
	require.Error(t, err)

	// 发送失败不占用冷却，用户可以立即重试
	mail.fail = false
	require.NoError(t, svc.RequestReset(context.Background(), "alice@example.com"))
}

func TestConfirmResetHappyPath(t *testing.T) {
	svc, userSvc, mail, _ := newTestResetService(t)
	registerUser(t, userSvc, "alice@example.com", "oldpass123")

	require.NoError(t, svc.RequestReset(context.Background(), "alice@example.com"))
	require.NoError(t, svc.ConfirmReset(context.Background(), "alice@example.com", mail.lastCode, "newpass456"))

	_, _, err := userSvc.Login("alice@example.com", "newpass456")
	assert.NoError(t, err)

	// 票据一次性：同一验证码不能再次使用
	err = svc.ConfirmReset(context.Background(), "alice@example.com", mail.lastCode, "another789")
	assert.ErrorIs(t, err, ErrResetNotAllowed)
}

func TestConfirmResetWrongCodeKeepsTicket(t *testing.T) {
	svc, userSvc, mail, _ := newTestResetService(t)
	registerUser(t, userSvc, "alice@example.com", "oldpass123")

	require.NoError(t, svc.RequestReset(context.Background(), "alice@example.com"))

	err := svc.ConfirmReset(context.Background(), "alice@example.com", "000000", "newpass456")
	assert.ErrorIs(t, err, ErrResetNotAllowed)

	// 密码未被修改，正确验证码依然有效
	_, _, err = userSvc.Login("alice@example.com", "oldpass123")
	assert.NoError(t, err)
	require.NoError(t, svc.ConfirmReset(context.Background(), "alice@example.com", mail.lastCode, "newpass456"))
}

func TestConfirmResetWithoutRequest(t *testing.T) {
	svc, userSvc, _, _ := newTestResetService(t)
	registerUser(t, userSvc, "alice@example.com", "oldpass123")

	err := svc.ConfirmReset(context.Background(), "alice@example.com", "123456", "newpass456")
	assert.ErrorIs(t, err, ErrResetNotAllowed)
}

func TestCancelResetClearsState(t *testing.T) {
	svc, userSvc, mail, _ := newTestResetService(t)
	registerUser(t, userSvc, "alice@example.com", "oldpass123")

	require.NoError(t, svc.RequestReset(context.Background(), "alice@example.com"))
	require.NoError(t, svc.CancelReset(context.Background(), "alice@example.com"))

	// 取消后旧验证码作废
	err := svc.ConfirmReset(context.Background(), "alice@example.com", mail.lastCode, "newpass456")
	assert.ErrorIs(t, err, ErrResetNotAllowed)

	// 冷却同时被清理，可以立即重新申请
	require.NoError(t, svc.RequestReset(context.Background(), "alice@example.com"))
}

func registerUser(t *testing.T, svc UserService, email, password string) {
	t.Helper()
	_, err := svc.Register(email, password, model.RolePatient)
	require.NoError(t, err)
}
