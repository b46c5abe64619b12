package util

import (
	"crowdfunding-platform/config"
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// Claims 令牌中携带的身份信息
type Claims struct {
	ID        string // jti，注销时按它加入黑名单
	UserID    int
	Email     string
	Role      string
	ExpiresAt time.Time
}

func tokenTTL() time.Duration {
	if config.AppConfig.TokenTTLHours > 0 {
		return time.Duration(config.AppConfig.TokenTTLHours) * time.Hour
	}
	return 24 * time.Hour
}

func GenerateToken(userID int, email, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"role":    role,
		"jti":     uuid.NewString(),
		"exp":     time.Now().Add(tokenTTL()).Unix(),
	})

	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("令牌为空")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("不支持的签名算法")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("无效的令牌")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, errors.New("无效的用户ID")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return nil, errors.New("令牌缺少角色")
	}
	tokenID, _ := claims["jti"].(string)
	if tokenID == "" {
		return nil, errors.New("令牌缺少ID")
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, errors.New("令牌缺少过期时间")
	}
	email, _ := claims["email"].(string)

	return &Claims{
		ID:        tokenID,
		UserID:    int(userID),
		Email:     email,
		Role:      role,
		ExpiresAt: time.Unix(int64(exp), 0).UTC(),
	}, nil
}
