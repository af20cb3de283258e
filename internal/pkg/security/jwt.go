package security

import (
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/redis"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMissing = errors.New("token 缺失或格式错误")
	ErrTokenRevoked = errors.New("token 已注销")
	ErrTokenInvalid = errors.New("token 无效或已过期")
)

// GenerateToken 生成一个新的 JWT Token，签发属于账号服务，这里仅供联调与测试使用
func GenerateToken(userID uint64, roles []string) (string, error) {
	expirationTime := time.Now().Add(JWTExpirationTime)

	claims := &UserClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    JWTIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", fmt.Errorf("签名 Token 失败: %w", err)
	}

	return tokenString, nil
}

// ValidateToken 验证 Token 字符串并解析出 Claims
func ValidateToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名方法: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if !token.Valid || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ExtractSignature 从 Token 字符串中提取签名
func ExtractSignature(tokenString string) (string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return "", ErrTokenMissing
	}
	return parts[2], nil
}

// BearerToken 从 Authorization 头中取出 token
func BearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Authenticate 校验注销黑名单与签名，HTTP 中间件与 WS 握手共用
func Authenticate(ctx context.Context, tokenString string) (*UserClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	signature, err := ExtractSignature(tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := redis.GetValue(ctx, consts.TokenRevokeKey+signature)
	if err != nil {
		return nil, fmt.Errorf("查询 token 黑名单失败: %w", err)
	}
	if revoked != "" {
		return nil, ErrTokenRevoked
	}

	return ValidateToken(tokenString)
}

// IsAuthError 凭据本身的问题，区别于黑名单查询等系统异常
func IsAuthError(err error) bool {
	return errors.Is(err, ErrTokenMissing) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenRevoked)
}
