package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"Lifeline/pkg/errors"
)

const issuer = "lifeline"

// Manager 签发与校验JWT
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager 创建JWT管理器
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Claims JWT声明
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken 为指定用户签发HS256令牌
func (m *Manager) GenerateToken(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if len(m.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}

	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// ParseToken 校验签名与声明，返回用户ID
func (m *Manager) ParseToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.Unauthorized("Unauthorized: No token provided")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		// 签名非法或已过期：凭证可解析但未通过校验
		return "", errors.Forbidden("Forbidden: Invalid or expired token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return "", errors.Forbidden("Forbidden: Invalid or expired token")
	}
	return claims.Subject, nil
}

// HashPassword bcrypt哈希
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword 校验明文密码与哈希
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
