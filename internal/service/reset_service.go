package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medsmart-go/internal/repository"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/mailer"
	"medsmart-go/pkg/token"

	"gorm.io/gorm"
)

// otpDigits 是验证码位数。
const otpDigits = 6

// defaultResendCooldown 是两次发送验证码之间的最短间隔。
const defaultResendCooldown = 60 * time.Second

// ErrResetNotAllowed 对"邮箱未注册"和"验证码错误/过期"统一返回，
// 不向调用方泄露具体是哪一种失败。
var ErrResetNotAllowed = errors.New("验证码错误或已过期")

// ErrCooldownActive 表示重发冷却尚未结束。
type ErrCooldownActive struct {
	Remaining time.Duration
}

func (e *ErrCooldownActive) Error() string {
	return fmt.Sprintf("请 %d 秒后再重新发送验证码", int(e.Remaining.Seconds()+0.5))
}

// ResetService 实现了"请求验证码 → 校验验证码并改密"的密码重置流程。
// 流程状态（票据与冷却）全部保存在 Redis 中，服务本身无状态。
type ResetService interface {
	// RequestReset 为已注册邮箱签发验证码并通过邮件发送。
	// 未注册的邮箱同样返回 ErrResetNotAllowed，避免账户枚举。
	RequestReset(ctx context.Context, email string) error
	// ConfirmReset 校验验证码并更新密码。验证码错误时票据保留，可直接重试。
	ConfirmReset(ctx context.Context, email, code, newPassword string) error
	// CancelReset 放弃当前重置流程，清理票据与冷却。
	CancelReset(ctx context.Context, email string) error
}

type resetService struct {
	userRepo    repository.UserRepository
	otpRepo     repository.OTPRepository
	userService UserService
	sender      mailer.Sender
	cooldown    time.Duration
}

// NewResetService 创建一个新的 ResetService 实例。
func NewResetService(userRepo repository.UserRepository, otpRepo repository.OTPRepository, userService UserService, sender mailer.Sender) ResetService {
	return &resetService{
		userRepo:    userRepo,
		otpRepo:     otpRepo,
		userService: userService,
		sender:      sender,
		cooldown:    defaultResendCooldown,
	}
}

// RequestReset 签发并发送验证码。
func (s *resetService) RequestReset(ctx context.Context, email string) error {
	// 1. 邮箱必须已注册；未注册走与验证码错误相同的泛化错误
	if _, err := s.userRepo.FindByEmail(email); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[ResetService] 收到未注册邮箱的重置请求: %s", email)
			return ErrResetNotAllowed
		}
		return err
	}

	// 2. 冷却按墙钟计时，先抢占再发送
	ok, remaining, err := s.otpRepo.AcquireCooldown(ctx, email, s.cooldown)
	if err != nil {
		return err
	}
	if !ok {
		return &ErrCooldownActive{Remaining: remaining}
	}

	// 3. 签发新票据，覆盖同邮箱的旧票据
	code := token.GenerateNumericCode(otpDigits)
	ticket := repository.ResetTicket{
		Email:    email,
		Code:     code,
		IssuedAt: time.Now(),
	}
	if err := s.otpRepo.SaveTicket(ctx, ticket); err != nil {
		_ = s.otpRepo.ClearCooldown(ctx, email)
		return err
	}

	// 4. 发送邮件；发送失败时回收冷却，允许用户立即重试
	if err := s.sender.SendOTP(email, code); err != nil {
		log.Errorf("[ResetService] 发送验证码邮件失败, Email: %s, Error: %v", email, err)
		_ = s.otpRepo.DeleteTicket(ctx, email)
		_ = s.otpRepo.ClearCooldown(ctx, email)
		return fmt.Errorf("发送验证码失败: %w", err)
	}

	log.Infof("[ResetService] 验证码已发送, Email: %s", email)
	return nil
}

// ConfirmReset 校验验证码并更新密码。
func (s *resetService) ConfirmReset(ctx context.Context, email, code, newPassword string) error {
	ticket, err := s.otpRepo.GetTicket(ctx, email)
	if err != nil {
		return err
	}
	if ticket == nil || ticket.Code != code {
		// 票据缺失与验证码错误返回同一个错误；票据保留，允许重试
		return ErrResetNotAllowed
	}

	updated, err := s.userService.ResetPassword(email, newPassword)
	if err != nil {
		return err
	}
	if !updated {
		// 票据存在但用户已不在（极端并发下用户被删除），按泛化错误处理
		return ErrResetNotAllowed
	}

	// 验证成功后票据一次性作废，冷却一并清理
	if err := s.otpRepo.DeleteTicket(ctx, email); err != nil {
		log.Errorf("[ResetService] 删除已使用的票据失败, Email: %s, Error: %v", email, err)
	}
	if err := s.otpRepo.ClearCooldown(ctx, email); err != nil {
		log.Errorf("[ResetService] 清理冷却失败, Email: %s, Error: %v", email, err)
	}

	log.Infof("[ResetService] 密码重置成功, Email: %s", email)
	return nil
}

// CancelReset 清理票据与冷却，返回到未发起状态。
func (s *resetService) CancelReset(ctx context.Context, email string) error {
	if err := s.otpRepo.DeleteTicket(ctx, email); err != nil {
		return err
	}
	return s.otpRepo.ClearCooldown(ctx, email)
}
