package service

import (
	"context"
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/repository/interfaces"
	"crowdfunding-platform/internal/session"
	"crowdfunding-platform/internal/util"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

// UserServiceInterface 供处理器使用的用户服务
type UserServiceInterface interface {
	Register(ctx context.Context, input RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	GetUserByID(ctx context.Context, id int) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	Logout(ctx context.Context, tokenID string, expiresAt time.Time) error
	RefreshToken(ctx context.Context, userID int, tokenID string, expiresAt time.Time) (*model.User, string, error)
}

// RegisterInput 注册参数
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// UserService 处理与用户相关的业务逻辑
type UserService struct {
	userRepo  interfaces.UserRepository
	blacklist session.Blacklist
	now       Clock
}

// NewUserService 创建一个新的 UserService 实例
func NewUserService(userRepo interfaces.UserRepository, blacklist session.Blacklist) *UserService {
	return &UserService{userRepo: userRepo, blacklist: blacklist, now: utcNow}
}

var _ UserServiceInterface = (*UserService)(nil)

// Register 注册新用户，只允许自助注册为捐款人或创建者
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, errors.New(errors.ErrValidation, "valid email is required")
	}
	if len(input.Password) < 6 {
		return nil, errors.New(errors.ErrValidation, "password must be at least 6 characters")
	}

	role := input.Role
	if role == "" {
		role = model.RoleDonor
	}
	if role != model.RoleDonor && role != model.RoleCreator {
		return nil, errors.New(errors.ErrValidation, "role must be donor or creator")
	}

	return s.create(ctx, strings.TrimSpace(input.Name), email, input.Password, role)
}

// EnsureAdmin 不存在时创建管理员账号，用于初始化
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to look up user", err)
	}
	if existing != nil {
		if existing.Role != model.RoleAdmin {
			return nil, errors.New(errors.ErrResourceExists, "user exists with a non-admin role")
		}
		return existing, nil
	}
	return s.create(ctx, "Administrator", email, password, model.RoleAdmin)
}

func (s *UserService) create(ctx context.Context, name, email, password, role string) (*model.User, error) {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to look up user", err)
	}
	if existing != nil {
		return nil, errors.New(errors.ErrResourceExists, "User already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to hash password", err)
	}

	now := s.now()
	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to create user", err)
	}

	util.Logger.Info("用户注册成功", zap.Int("user_id", user.ID), zap.String("role", role))
	return user, nil
}

// Login 校验密码并签发令牌
func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrDatabase, "failed to look up user", err)
	}
	if user == nil {
		util.Logger.Info("登录失败，用户不存在", zap.String("email", email))
		return nil, "", errors.New(errors.ErrInvalidCredentials, "Invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		util.Logger.Info("登录失败，密码不正确", zap.Int("user_id", user.ID))
		return nil, "", errors.New(errors.ErrInvalidCredentials, "Invalid email or password")
	}

	token, err := util.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrInternal, "failed to issue token", err)
	}

	util.Logger.Info("用户登录成功", zap.Int("user_id", user.ID))
	return user, token, nil
}

// GetUserByID 通过ID获取用户信息
func (s *UserService) GetUserByID(ctx context.Context, id int) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to look up user", err)
	}
	if user == nil {
		return nil, errors.New(errors.ErrResourceNotFound, "User not found")
	}
	return user, nil
}

// ListUsers 管理员查看全部用户
func (s *UserService) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.FindAll(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list users", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// Logout 注销调用方当前使用的令牌
func (s *UserService) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New(errors.ErrInvalidToken, "Token has no ID")
	}
	if err := s.blacklist.Revoke(ctx, tokenID, expiresAt); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to revoke token", err)
	}
	util.Logger.Info("用户已登出", zap.String("token_id", tokenID))
	return nil
}

// RefreshToken 按用户当前资料签发新令牌，旧令牌随即作废
func (s *UserService) RefreshToken(ctx context.Context, userID int, tokenID string, expiresAt time.Time) (*model.User, string, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	token, err := util.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrInternal, "failed to issue token", err)
	}
	if err := s.Logout(ctx, tokenID, expiresAt); err != nil {
		return nil, "", err
	}

	util.Logger.Info("令牌已刷新", zap.Int("user_id", user.ID))
	return user, token, nil
}
