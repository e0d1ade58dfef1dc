package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"medsmart-go/internal/config"
	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/kafka"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/storage"
	"medsmart-go/pkg/tasks"
	"medsmart-go/pkg/token"
)

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	CreatedAt model.LocalTime `json:"createdAt"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	ListUsers(page, size int) (*UserListResponse, error)
	// UploadDocument 接收上传的 PDF：存入 MinIO 并投递异步导入任务。
	// 返回对象名，导入本身由后台消费者完成。
	UploadDocument(ctx context.Context, fileName string, r io.Reader, size int64, uploadedBy string) (string, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo repository.UserRepository
	minioCfg config.MinIOConfig
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository, minioCfg config.MinIOConfig) AdminService {
	return &adminService{
		userRepo: userRepo,
		minioCfg: minioCfg,
	}
}

// ListUsers 分页返回系统中的用户。
func (s *adminService) ListUsers(page, size int) (*UserListResponse, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	users, total, err := s.userRepo.FindWithPagination(page*size, size)
	if err != nil {
		return nil, err
	}

	content := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		content = append(content, UserDetailResponse{
			Email:     u.Email,
			Role:      u.Role,
			CreatedAt: model.LocalTime(u.CreatedAt),
		})
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &UserListResponse{
		Content:       content,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}, nil
}

// UploadDocument 把上传文件写入 MinIO，再投递 Kafka 导入任务。
// 对象名带随机前缀，同名文件的多次上传互不覆盖。
func (s *adminService) UploadDocument(ctx context.Context, fileName string, r io.Reader, size int64, uploadedBy string) (string, error) {
	base := filepath.Base(fileName)
	if base == "" || base == "." {
		return "", errors.New("文件名不合法")
	}
	if !strings.EqualFold(filepath.Ext(base), ".pdf") {
		return "", errors.New("仅支持上传 PDF 文件")
	}
	if size <= 0 {
		return "", errors.New("文件内容为空")
	}

	objectName := fmt.Sprintf("uploads/%s-%s", token.GenerateRandomString(8), base)
	if err := storage.PutObject(ctx, s.minioCfg.BucketName, objectName, r, size); err != nil {
		return "", fmt.Errorf("上传到 MinIO 失败: %w", err)
	}

	task := tasks.IngestTask{
		ObjectName: objectName,
		FileName:   base,
		UploadedBy: uploadedBy,
	}
	if err := kafka.ProduceIngestTask(task); err != nil {
		return "", fmt.Errorf("投递导入任务失败: %w", err)
	}

	log.Infof("[AdminService] 文档已接收, Object: %s, UploadedBy: %s", objectName, uploadedBy)
	return objectName, nil
}
