package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// 艺术家 token 有效期
const artistTokenTTL = 24 * time.Hour

var (
	ErrBadCredentials = errors.New("口令不正确")
	ErrNotConfigured  = errors.New("未配置艺术家口令")
)

// ArtistAuthenticator 艺术家（站长）身份授权方
// 对本引擎而言这是外部协作者：引擎只需要一个 “调用方是否为认证艺术家” 的布尔判定
type ArtistAuthenticator struct {
	secret       []byte
	passwordHash string // bcrypt hash
}

// NewArtistAuthenticator 创建授权方
func NewArtistAuthenticator(jwtSecret, artistPasswordHash string) *ArtistAuthenticator {
	return &ArtistAuthenticator{
		secret:       []byte(jwtSecret),
		passwordHash: artistPasswordHash,
	}
}

// Login 校验艺术家口令并签发 token
func (a *ArtistAuthenticator) Login(password string) (string, error) {
	if a.passwordHash == "" {
		return "", ErrNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"artist": true,
		"jti":    uuid.New().String(),
		"iat":    now.Unix(),
		"exp":    now.Add(artistTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("签发 token 失败: %w", err)
	}
	return signed, nil
}

// IsArtist 判定 token 是否属于认证艺术家
// 任何解析或签名问题都按非艺术家处理
func (a *ArtistAuthenticator) IsArtist(tokenString string) bool {
	if tokenString == "" {
		return false
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	isArtist, _ := claims["artist"].(bool)
	return isArtist
}

// HashPassword 生成口令的 bcrypt hash（部署时生成 ARTIST_PASSWORD_HASH 用）
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}
