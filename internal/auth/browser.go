// Package auth 签发和校验浏览器标识令牌。
//
// 浏览器标识相当于前端的 localStorage 作用域：同一浏览器的所有请求共享一个
// 会话引擎和一条持久化的临时邮箱记录。
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken 无效的令牌
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken 令牌已过期
	ErrExpiredToken = errors.New("token expired")
)

const issuer = "tempmail-web"

// Claims 浏览器标识令牌声明
type Claims struct {
	BrowserID string `json:"bid"`
	jwt.RegisteredClaims
}

// BrowserManager 浏览器标识管理器
type BrowserManager struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewBrowserManager 创建浏览器标识管理器
//
// secret 为空时生成随机密钥，进程重启后旧 Cookie 失效。
func NewBrowserManager(secret string, maxAge time.Duration) (*BrowserManager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		random, err := RandomSecret()
		if err != nil {
			return nil, err
		}
		key = []byte(random)
	}
	return &BrowserManager{
		secret: key,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// MaxAge 返回令牌有效期
func (m *BrowserManager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue 为新浏览器生成标识和签名令牌
func (m *BrowserManager) Issue() (browserID, token string, err error) {
	browserID = uuid.NewString()
	token, err = m.Sign(browserID)
	return browserID, token, err
}

// Sign 为已有浏览器标识签发令牌
func (m *BrowserManager) Sign(browserID string) (string, error) {
	now := m.now()
	claims := Claims{
		BrowserID: browserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   browserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign browser token: %w", err)
	}
	return signed, nil
}

// Validate 验证令牌并返回浏览器标识
func (m *BrowserManager) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.BrowserID == "" {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.BrowserID); err != nil {
		return "", ErrInvalidToken
	}

	return claims.BrowserID, nil
}

// RandomSecret 生成 64 个十六进制字符的随机密钥
func RandomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
