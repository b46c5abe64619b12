package model

import "time"

// 用户角色
const (
	RoleDonor   = "donor"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

// User 结构体表示用户模型
type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // 密码哈希不应在JSON中暴露
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DisplayName 返回展示用的名称，未设置名称时使用邮箱
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
