package handler

import (
	"errors"
	"net/http"

	"medsmart-go/internal/service"
	"medsmart-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责 token 刷新与密码重置相关的 API。
type AuthHandler struct {
	userService  service.UserService
	resetService service.ResetService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService, resetService service.ResetService) *AuthHandler {
	return &AuthHandler{
		userService:  userService,
		resetService: resetService,
	}
}

// RefreshTokenRequest 定义了 token 刷新 API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken 处理 token 刷新请求。
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：refreshToken 不能为空",
		})
		return
	}

	accessToken, refreshToken, err := h.userService.RefreshToken(req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "refresh token 无效或已过期",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"token":        accessToken,
			"refreshToken": refreshToken,
		},
	})
}

// ForgotPasswordRequest 定义了请求验证码 API 的请求体结构。
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ForgotPassword 处理密码重置验证码的发送请求。
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱不能为空",
		})
		return
	}

	err := h.resetService.RequestReset(c.Request.Context(), req.Email)
	if err != nil {
		var cooldown *service.ErrCooldownActive
		if errors.As(err, &cooldown) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":       http.StatusTooManyRequests,
				"message":    cooldown.Error(),
				"retryAfter": int(cooldown.Remaining.Seconds() + 0.5),
			})
			return
		}
		if errors.Is(err, service.ErrResetNotAllowed) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "无法发送验证码",
			})
			return
		}
		log.Errorf("ForgotPassword failed for '%s': %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "发送验证码失败，请稍后重试",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "验证码已发送",
	})
}

// ResetPasswordRequest 定义了校验验证码并改密 API 的请求体结构。
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ResetPassword 处理验证码校验与密码更新请求。
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱、验证码和新密码不能为空",
		})
		return
	}

	err := h.resetService.ConfirmReset(c.Request.Context(), req.Email, req.Code, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrResetNotAllowed) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "验证码错误或已过期",
			})
			return
		}
		log.Errorf("ResetPassword failed for '%s': %v", req.Email, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "密码重置成功",
	})
}

// CancelResetRequest 定义了取消重置流程 API 的请求体结构。
type CancelResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// CancelReset 放弃当前的密码重置流程。
func (h *AuthHandler) CancelReset(c *gin.Context) {
	var req CancelResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱不能为空",
		})
		return
	}

	if err := h.resetService.CancelReset(c.Request.Context(), req.Email); err != nil {
		log.Errorf("CancelReset failed for '%s': %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "取消重置失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "重置流程已取消",
	})
}
