package middleware

import (
	"context"
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/util"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	contextPrincipal = "principal"
	requestTimeout   = 5 * time.Second
)

// Principal 令牌中解析出的当前用户
type Principal struct {
	UserID    int
	Email     string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// RevocationChecker 查询令牌是否已注销
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

func AuthMiddleware(revocations RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		util.Logger.Debug("进入认证中间件",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := util.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			errors.HandleError(c, errors.Wrap(errors.ErrInvalidToken, "Invalid or expired token", err))
			c.Abort()
			return
		}

		revoked, err := revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			util.Logger.Error("查询令牌黑名单失败", zap.Error(err), zap.Int("user_id", claims.UserID))
			errors.HandleError(c, errors.Wrap(errors.ErrInternal, "failed to verify token", err))
			c.Abort()
			return
		}
		if revoked {
			errors.HandleError(c, errors.New(errors.ErrInvalidToken, "Token has been revoked"))
			c.Abort()
			return
		}

		c.Set(contextPrincipal, Principal{
			UserID:    claims.UserID,
			Email:     claims.Email,
			Role:      claims.Role,
			TokenID:   claims.ID,
			ExpiresAt: claims.ExpiresAt,
		})

		select {
		case <-ctx.Done():
			errors.HandleError(c, errors.New(errors.ErrTimeout, "Request timed out"))
			c.Abort()
			return
		default:
			c.Next()
		}
	}
}

// CurrentUser 返回认证中间件写入的用户
func CurrentUser(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(contextPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// SetCurrentUser 供测试和内部调用写入当前用户
func SetCurrentUser(c *gin.Context, p Principal) {
	c.Set(contextPrincipal, p)
}
