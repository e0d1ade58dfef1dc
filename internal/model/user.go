// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 系统内的三种访问角色。公开注册只允许 Patient 和 Staff，
// Admin 只能通过引导接口在系统内尚无管理员时创建。
const (
	RolePatient = "Patient"
	RoleStaff   = "Staff"
	RoleAdmin   = "Admin"
)

// User 对应于数据库中的 'users' 表，以邮箱作为主键。
type User struct {
	// Email 是用户的唯一标识。
	Email string `gorm:"type:varchar(255);primaryKey" json:"email"`
	// Password 存储 bcrypt 哈希，绝不存储明文。
	Password string `gorm:"type:varchar(255);not null" json:"-"`
	// Role 是用户的访问角色：Patient、Staff 或 Admin。
	Role string `gorm:"type:varchar(20);not null" json:"role"`
	// CreatedAt 由 GORM 自动管理，记录注册时间。
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// PublicRoleOrDefault 将公开注册请求的角色收敛到允许的集合内。
// 任何不在 {Patient, Staff} 中的角色都会被静默降级为 Patient。
func PublicRoleOrDefault(requested string) string {
	switch requested {
	case RolePatient, RoleStaff:
		return requested
	default:
		return RolePatient
	}
}
