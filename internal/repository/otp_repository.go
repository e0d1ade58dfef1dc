// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ResetTicket 是一次密码重置的临时票据。
// 票据一次只存在一张：重发覆盖旧票据，验证成功或取消后删除。
type ResetTicket struct {
	Email    string    `json:"email"`
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// OTPRepository 定义了重置票据与重发冷却的操作接口。
type OTPRepository interface {
	// SaveTicket 写入（或覆盖）票据，并带兜底 TTL 防止票据永久存活。
	SaveTicket(ctx context.Context, ticket ResetTicket) error
	// GetTicket 读取票据；不存在时返回 (nil, nil)。
	GetTicket(ctx context.Context, email string) (*ResetTicket, error)
	DeleteTicket(ctx context.Context, email string) error
	// AcquireCooldown 尝试获取重发冷却：成功返回 (true, 0)；
	// 冷却未结束返回 (false, 剩余时长)。
	AcquireCooldown(ctx context.Context, email string, d time.Duration) (bool, time.Duration, error)
	ClearCooldown(ctx context.Context, email string) error
}

type redisOTPRepository struct {
	redisClient *redis.Client
	ticketTTL   time.Duration
}

// NewOTPRepository 创建一个新的 OTPRepository 实例。
func NewOTPRepository(redisClient *redis.Client) OTPRepository {
	return &redisOTPRepository{
		redisClient: redisClient,
		ticketTTL:   15 * time.Minute,
	}
}

func ticketKey(email string) string {
	return fmt.Sprintf("otp:reset:%s", email)
}

func cooldownKey(email string) string {
	return fmt.Sprintf("otp:cooldown:%s", email)
}

// SaveTicket 在 Redis 中写入票据。
func (r *redisOTPRepository) SaveTicket(ctx context.Context, ticket ResetTicket) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal reset ticket: %w", err)
	}
	if err := r.redisClient.Set(ctx, ticketKey(ticket.Email), data, r.ticketTTL).Err(); err != nil {
		return fmt.Errorf("failed to save reset ticket: %w", err)
	}
	return nil
}

// GetTicket 从 Redis 读取票据。
func (r *redisOTPRepository) GetTicket(ctx context.Context, email string) (*ResetTicket, error) {
	data, err := r.redisClient.Get(ctx, ticketKey(email)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reset ticket: %w", err)
	}
	var ticket ResetTicket
	if err := json.Unmarshal([]byte(data), &ticket); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reset ticket: %w", err)
	}
	return &ticket, nil
}

// DeleteTicket 删除票据（验证成功或用户取消时调用）。
func (r *redisOTPRepository) DeleteTicket(ctx context.Context, email string) error {
	return r.redisClient.Del(ctx, ticketKey(email)).Err()
}

// AcquireCooldown 用 SET NX 抢占冷却键，带 TTL，天然实现按墙钟计时的重发节流。
func (r *redisOTPRepository) AcquireCooldown(ctx context.Context, email string, d time.Duration) (bool, time.Duration, error) {
	ok, err := r.redisClient.SetNX(ctx, cooldownKey(email), "1", d).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to acquire cooldown: %w", err)
	}
	if ok {
		return true, 0, nil
	}
	remaining, err := r.redisClient.TTL(ctx, cooldownKey(email)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read cooldown ttl: %w", err)
	}
	if remaining < 0 {
		remaining = 0
	}
	return false, remaining, nil
}

// ClearCooldown 清除冷却键（用户取消重置流程时调用）。
func (r *redisOTPRepository) ClearCooldown(ctx context.Context, email string) error {
	return r.redisClient.Del(ctx, cooldownKey(email)).Err()
}
