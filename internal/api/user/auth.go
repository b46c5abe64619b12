package user

import (
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/middleware"
	"crowdfunding-platform/internal/service"
	"crowdfunding-platform/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler 处理与认证相关的HTTP请求
type AuthHandler struct {
	userService service.UserServiceInterface
}

// NewAuthHandler 创建一个新的 AuthHandler 实例
func NewAuthHandler(userService service.UserServiceInterface) *AuthHandler {
	return &AuthHandler{userService}
}

// Register 处理用户注册请求
func (h *AuthHandler) Register(c *gin.Context) {
	var registerData struct {
		Name     string `json:"name"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
		Role     string `json:"role" binding:"omitempty,oneof=donor creator"`
	}

	if err := c.ShouldBindJSON(&registerData); err != nil {
		util.Logger.Warn("注册失败，无效的请求数据", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid registration data", err))
		return
	}

	user, err := h.userService.Register(c.Request.Context(), service.RegisterInput{
		Name:     registerData.Name,
		Email:    registerData.Email,
		Password: registerData.Password,
		Role:     registerData.Role,
	})
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	token, err := util.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrInternal, "failed to issue token", err))
		return
	}

	errors.HandleCreated(c, gin.H{
		"token": token,
		"user":  user,
	}, "User registered successfully")
}

// Login 处理用户登录请求
func (h *AuthHandler) Login(c *gin.Context) {
	var loginData struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&loginData); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid login data", err))
		return
	}

	user, token, err := h.userService.Login(c.Request.Context(), loginData.Email, loginData.Password)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	errors.HandleSuccess(c, gin.H{
		"token": token,
		"user":  user,
	}, "Login successful")
}

// Me 返回当前登录用户
func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), p.UserID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, user, "")
}

// Logout 作废当前请求使用的令牌
func (h *AuthHandler) Logout(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
		return
	}

	if err := h.userService.Logout(c.Request.Context(), p.TokenID, p.ExpiresAt); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, nil, "Logged out")
}

// RefreshToken 签发新令牌，当前令牌随即失效
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
		return
	}

	user, token, err := h.userService.RefreshToken(c.Request.Context(), p.UserID, p.TokenID, p.ExpiresAt)
	if err != nil {
		util.Logger.Warn("刷新令牌失败", zap.Error(err), zap.Int("user_id", p.UserID))
		errors.HandleError(c, err)
		return
	}

	errors.HandleSuccess(c, gin.H{
		"token": token,
		"user":  user,
	}, "Token refreshed")
}

// ListUsers 管理员查看全部用户
func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, users, "")
}
