package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role 表示用户角色。
type Role string

const (
	RoleBasic Role = "basic" // 普通用户，只能管理自己的任务
	RoleAdmin Role = "admin" // 管理员，可管理所有用户与任务
)

// Valid 判断角色是否合法。
func (r Role) Valid() bool {
	return r == RoleBasic || r == RoleAdmin
}

// ParseRole 将注册请求中的角色字符串映射为角色，只有 "admin" 会得到管理员，其余一律为 basic。
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleBasic
}

// User 表示系统用户。
type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`             // 用户 ID (UUIDv7)
	FirstName string    `gorm:"type:varchar(100)"`                       // 名
	LastName  string    `gorm:"type:varchar(100)"`                       // 姓
	Username  string    `gorm:"type:varchar(191);uniqueIndex;not null"`  // 用户名（唯一，区分大小写）
	Email     string    `gorm:"type:varchar(191);uniqueIndex;not null"`  // 邮箱（唯一）
	Password  string    `gorm:"not null"`                                // bcrypt 哈希
	Role      Role      `gorm:"type:varchar(16);not null;default:basic"` // 角色: basic / admin
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Tasks []Task `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate 在插入前生成 ID。
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID != "" {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	u.ID = id.String()
	return nil
}

// UserProfile 是用户的完整公开视图（不含密码）。
type UserProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
}

// UserSummary 是附加在任务和登录响应上的用户摘要。
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Profile 返回用户的公开视图。
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
	}
}

// Summary 返回用户摘要。
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}
