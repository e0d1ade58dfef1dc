package service

import (
	"fmt"
	"testing"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/hash"
	"medsmart-go/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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

func newTestUserService(t *testing.T, bootstrapSecret string) (UserService, repository.UserRepository) {
	t.Helper()
	userRepo := repository.NewUserRepository(newTestDB(t))
	jwtManager := token.NewJWTManager("test-secret", 1, 1)
	return NewUserService(userRepo, jwtManager, bootstrapSecret), userRepo
}

// newTestUserServiceWithRepo 在已有的用户仓库上构建 UserService，供跨服务测试复用。
func newTestUserServiceWithRepo(userRepo repository.UserRepository) UserService {
	jwtManager := token.NewJWTManager("test-secret", 1, 1)
	return NewUserService(userRepo, jwtManager, "")
}

func TestRegisterAndLogin(t *testing.T) {
	svc, userRepo := newTestUserService(t, "")

	user, err := svc.Register("alice@example.com", "secret123", model.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, user.Role)

	// 密码只存哈希
	stored, err := userRepo.FindByEmail("alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.Password)
	assert.True(t, hash.CheckPasswordHash("secret123", stored.Password))

	accessToken, refreshToken, err := svc.Login("alice@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
	assert.NotEmpty(t, refreshToken)
}

func TestLoginYieldsStoredRole(t *testing.T) {
	svc, _ := newTestUserService(t, "")

	_, err := svc.Register("alice@x.com", "secret1", model.RolePatient)
	require.NoError(t, err)

	_, _, err = svc.Login("alice@x.com", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login("alice@x.com", "secret1")
	require.NoError(t, err)

	profile, err := svc.GetProfile("alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, profile.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestUserService(t, "")

	_, err := svc.Register("alice@example.com", "secret123", model.RolePatient)
	require.NoError(t, err)

	_, err = svc.Register("alice@example.com", "another456", model.RoleStaff)
	assert.Error(t, err)
}

func TestRegisterCoercesRoleToPatient(t *testing.T) {
	svc, _ := newTestUserService(t, "")

	// Admin 与任意非法角色都被降级为 Patient
	user, err := svc.Register("mallory@example.com", "secret123", model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, user.Role)

	user, err = svc.Register("bob@example.com", "secret123", "Superuser")
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, user.Role)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestUserService(t, "")

	_, err := svc.Register("not-an-email", "secret123", model.RolePatient)
	assert.Error(t, err)

	_, err = svc.Register("ok@example.com", "short", model.RolePatient)
	assert.Error(t, err)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, _ := newTestUserService(t, "")

	_, err := svc.Register("alice@example.com", "secret123", model.RolePatient)
	require.NoError(t, err)

	// 邮箱不存在与密码错误返回同一个错误
	_, _, errUnknown := svc.Login("nobody@example.com", "secret123")
	_, _, errWrongPwd := svc.Login("alice@example.com", "wrong-password")
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPwd, ErrInvalidCredentials)
}

func TestResetPasswordNonexistentEmail(t *testing.T) {
	svc, userRepo := newTestUserService(t, "")

	updated, err := svc.ResetPassword("ghost@example.com", "newpass123")
	require.NoError(t, err)
	assert.False(t, updated)

	// 不会因重置而凭空创建用户
	_, err = userRepo.FindByEmail("ghost@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestResetPasswordRoundTrip(t *testing.T) {
	svc, _ := newTestUserService(t, "")

	_, err := svc.Register("alice@example.com", "oldpass123", model.RolePatient)
	require.NoError(t, err)

	updated, err := svc.ResetPassword("alice@example.com", "newpass456")
	require.NoError(t, err)
	assert.True(t, updated)

	_, _, err = svc.Login("alice@example.com", "oldpass123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login("alice@example.com", "newpass456")
	assert.NoError(t, err)
}

func TestBootstrapAdminGates(t *testing.T) {
	svc, _ := newTestUserService(t, "bootstrap-key")

	// 密钥错误
	_, err := svc.BootstrapAdmin("wrong-key", "admin@example.com", "secret123")
	assert.Error(t, err)

	// 密钥正确，首个 Admin 创建成功
	admin, err := svc.BootstrapAdmin("bootstrap-key", "admin@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	exists, err := svc.AdminExists()
	require.NoError(t, err)
	assert.True(t, exists)

	// 已有 Admin 后引导关闭
	_, err = svc.BootstrapAdmin("bootstrap-key", "admin2@example.com", "secret123")
	assert.Error(t, err)
}

func TestBootstrapAdminDisabledWithoutSecret(t *testing.T) {
	svc, _ := newTestUserService(t, "")

	_, err := svc.BootstrapAdmin("", "admin@example.com", "secret123")
	assert.Error(t, err)
}
