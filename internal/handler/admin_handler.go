package handler

import (
	"net/http"
	"strconv"

	"medsmart-go/internal/service"
	"medsmart-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
	userService  service.UserService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService, userService service.UserService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		userService:  userService,
	}
}

// BootstrapRequest 定义了 Admin 引导 API 的请求体结构。
// 共享密钥通过查询参数 ?secret= 传递，不放在请求体中。
type BootstrapRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Bootstrap 创建首个 Admin 账户。
// 此接口不走认证中间件：引导时系统中还没有任何可登录的 Admin。
func (h *AdminHandler) Bootstrap(c *gin.Context) {
	secret := c.Query("secret")
	if secret == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "缺少引导密钥"})
		return
	}

	var req BootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱和密码不能为空",
		})
		return
	}

	admin, err := h.userService.BootstrapAdmin(secret, req.Email, req.Password)
	if err != nil {
		log.Warnf("Bootstrap: admin bootstrap rejected, error: %v", err)
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Admin account created",
		"data":    gin.H{"email": admin.Email},
	})
}

// ListUsers 分页返回系统中的用户列表。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	resp, err := h.adminService.ListUsers(page, size)
	if err != nil {
		log.Errorf("ListUsers failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取用户列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    resp,
	})
}

// UploadDocument 处理管理员上传 PDF 的请求。
// 文件先入 MinIO，导入任务经 Kafka 异步执行，接口立即返回。
func (h *AdminHandler) UploadDocument(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求：缺少 file 字段",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		log.Errorf("UploadDocument: open multipart file failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer f.Close()

	objectName, err := h.adminService.UploadDocument(c.Request.Context(), fileHeader.Filename, f, fileHeader.Size, user.Email)
	if err != nil {
		log.Warnf("UploadDocument failed, FileName: %s, Error: %v", fileHeader.Filename, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "文档已接收，正在后台导入",
		"data":    gin.H{"objectName": objectName},
	})
}
