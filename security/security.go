package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Token kinds carried in the "type" claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongTokenUse = errors.New("token type does not match expected use")
)

// Claims is the payload carried by both access and refresh tokens
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// TokenMaker mints and verifies signed, time-limited tokens
type TokenMaker struct {
	secret        []byte
	accessExpire  time.Duration
	refreshExpire time.Duration
}

// NewTokenMaker creates a TokenMaker with independent expiry windows for
// access and refresh tokens
func NewTokenMaker(secret string, accessExpire, refreshExpire time.Duration) *TokenMaker {
	return &TokenMaker{
		secret:        []byte(secret),
		accessExpire:  accessExpire,
		refreshExpire: refreshExpire,
	}
}

// CreateAccessToken creates a short-lived access token for the subject
func (m *TokenMaker) CreateAccessToken(subject string) (string, error) {
	return m.create(subject, TokenTypeAccess, m.accessExpire)
}

// CreateRefreshToken creates a long-lived refresh token for the subject
func (m *TokenMaker) CreateRefreshToken(subject string) (string, error) {
	return m.create(subject, TokenTypeRefresh, m.refreshExpire)
}

func (m *TokenMaker) create(subject, tokenType string, expire time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expire)),
		},
		Type: tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// VerifyAccessToken verifies signature, expiry and kind of an access token
func (m *TokenMaker) VerifyAccessToken(tokenString string) (*Claims, error) {
	return m.verify(tokenString, TokenTypeAccess)
}

// VerifyRefreshToken verifies signature, expiry and kind of a refresh token
func (m *TokenMaker) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return m.verify(tokenString, TokenTypeRefresh)
}

func (m *TokenMaker) verify(tokenString, expectedType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// An access token presented where a refresh token is required, or vice
	// versa, is rejected even if otherwise valid.
	if claims.Type != expectedType {
		return nil, ErrWrongTokenUse
	}

	return claims, nil
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a plaintext password against a bcrypt hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
