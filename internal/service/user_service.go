// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/database"
	"medsmart-go/pkg/hash"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/token"

	"gorm.io/gorm"
)

// emailPattern 只做基本格式校验，真实有效性由重置流程的邮件送达验证。
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ErrInvalidCredentials 在邮箱或密码任一错误时返回，不区分具体是哪一项。
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(email, password, requestedRole string) (*model.User, error)
	Login(email, password string) (accessToken, refreshToken string, err error)
	GetProfile(email string) (*model.User, error)
	Logout(tokenString string) error
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	// ResetPassword 更新指定邮箱的密码；邮箱不存在时返回 false 且不创建用户。
	ResetPassword(email, newPassword string) (bool, error)
	AdminExists() (bool, error)
	// BootstrapAdmin 创建首个 Admin 账户，受共享密钥保护且只在无 Admin 时可用。
	BootstrapAdmin(secret, email, password string) (*model.User, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo        repository.UserRepository
	jwtManager      *token.JWTManager
	bootstrapSecret string
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, bootstrapSecret string) UserService {
	return &userService{
		userRepo:        userRepo,
		jwtManager:      jwtManager,
		bootstrapSecret: bootstrapSecret,
	}
}

// Register 处理用户注册的业务逻辑。
// 注册入口只开放 Patient 与 Staff 两种角色，其他取值一律按 Patient 处理；
// Admin 账户只能通过 BootstrapAdmin 创建。
func (s *userService) Register(email, password, requestedRole string) (*model.User, error) {
	if !emailPattern.MatchString(email) {
		return nil, errors.New("邮箱格式不正确")
	}
	if len(password) < 6 {
		return nil, errors.New("密码长度不能少于 6 位")
	}

	// 1. 检查邮箱是否已注册
	_, err := s.userRepo.FindByEmail(email)
	if err == nil {
		return nil, errors.New("该邮箱已注册")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 3. 创建新用户
	newUser := &model.User{
		Email:    email,
		Password: hashedPassword,
		Role:     model.PublicRoleOrDefault(requestedRole),
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}

	log.Infof("[UserService] 新用户注册成功, Email: %s, Role: %s", newUser.Email, newUser.Role)
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(email, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", ErrInvalidCredentials
	}

	// 3. 生成 access token 和 refresh token
	accessToken, err = s.jwtManager.GenerateToken(user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.Email, user.Role)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// GetProfile 根据邮箱获取用户详细信息。
func (s *userService) GetProfile(email string) (*model.User, error) {
	return s.userRepo.FindByEmail(email)
}

// Logout 处理用户登出逻辑，将 token 加入 Redis 黑名单。
func (s *userService) Logout(tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	// token 的剩余有效期作为黑名单 key 的过期时间，过期后自动清理。
	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil
	}
	return database.RDB.Set(context.Background(), "blacklist:"+tokenString, "true", expiration).Err()
}

// RefreshToken 校验 refresh token 并签发新的一对 token。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", errors.New("refresh token 无效或已过期")
	}

	// 角色以数据库当前值为准，避免旧 token 延续已被变更的角色
	user, err := s.userRepo.FindByEmail(claims.Email)
	if err != nil {
		return "", "", err
	}

	newAccessToken, err = s.jwtManager.GenerateToken(user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err = s.jwtManager.GenerateRefreshToken(user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	return newAccessToken, newRefreshToken, nil
}

// ResetPassword 更新指定邮箱的密码哈希。
func (s *userService) ResetPassword(email, newPassword string) (bool, error) {
	if len(newPassword) < 6 {
		return false, errors.New("密码长度不能少于 6 位")
	}
	hashedPassword, err := hash.HashPassword(newPassword)
	if err != nil {
		return false, err
	}
	return s.userRepo.UpdatePassword(email, hashedPassword)
}

// AdminExists 检查系统中是否已存在 Admin 账户。
func (s *userService) AdminExists() (bool, error) {
	return s.userRepo.ExistsWithRole(model.RoleAdmin)
}

// BootstrapAdmin 创建首个 Admin 账户。
// 两道闸门：共享密钥必须配置且匹配，系统中尚无任何 Admin。
func (s *userService) BootstrapAdmin(secret, email, password string) (*model.User, error) {
	if s.bootstrapSecret == "" {
		return nil, errors.New("管理员引导未启用")
	}
	if secret != s.bootstrapSecret {
		return nil, errors.New("引导密钥不正确")
	}

	exists, err := s.AdminExists()
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.New("Admin 账户已存在")
	}

	if !emailPattern.MatchString(email) {
		return nil, errors.New("邮箱格式不正确")
	}
	if len(password) < 6 {
		return nil, errors.New("密码长度不能少于 6 位")
	}

	_, err = s.userRepo.FindByEmail(email)
	if err == nil {
		return nil, errors.New("该邮箱已注册")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}
	admin := &model.User{
		Email:    email,
		Password: hashedPassword,
		Role:     model.RoleAdmin,
	}
	if err := s.userRepo.Create(admin); err != nil {
		return nil, fmt.Errorf("创建 Admin 账户失败: %w", err)
	}

	log.Infof("[UserService] Admin 账户引导完成, Email: %s", admin.Email)
	return admin, nil
}
