package interfaces

import (
	"context"
	"crowdfunding-platform/internal/model"
)

// UserRepository 接口定义了用户仓库应该实现的方法
// 查询不到记录时返回 nil, nil
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id int) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindAll(ctx context.Context) ([]*model.User, error)
}
