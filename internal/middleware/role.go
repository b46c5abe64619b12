package middleware

import (
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequireRoles 只允许指定角色访问，必须在 AuthMiddleware 之后使用
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		p, ok := CurrentUser(c)
		if !ok {
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
			c.Abort()
			return
		}
		if !allowed[p.Role] {
			util.Logger.Warn("角色无权访问",
				zap.Int("user_id", p.UserID),
				zap.String("role", p.Role),
				zap.String("path", c.FullPath()))
			errors.HandleError(c, errors.New(errors.ErrForbidden, "Access denied"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminOnly 确保只有管理员可以访问某些路由
func AdminOnly() gin.HandlerFunc {
	return RequireRoles(model.RoleAdmin)
}

// OwnerOrAdmin 路径参数 param 指向的用户本人或管理员可以访问
func OwnerOrAdmin(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentUser(c)
		if !ok {
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
			c.Abort()
			return
		}

		ownerID, err := strconv.Atoi(c.Param(param))
		if err != nil {
			errors.HandleError(c, errors.New(errors.ErrValidation, "Invalid user ID"))
			c.Abort()
			return
		}
		if p.Role != model.RoleAdmin && p.UserID != ownerID {
			errors.HandleError(c, errors.New(errors.ErrForbidden, "Access denied"))
			c.Abort()
			return
		}
		c.Next()
	}
}
