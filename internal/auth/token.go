package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned for tokens past their validity window.
var ErrExpiredToken = errors.New("expired token")

// TokenManager issues and verifies signed bearer tokens carrying a user ID
// as the subject claim. Verification is stateless: a token stays valid for
// its full TTL, there is no revocation list.
type TokenManager struct {
	secret []byte
}

// NewTokenManager constructs a TokenManager from the configured signing
// secret. An empty secret is a configuration error.
func NewTokenManager(secret string) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	return &TokenManager{secret: []byte(secret)}, nil
}

// Issue creates a signed token for the user, valid for ttl from now.
func (m *TokenManager) Issue(userID int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks the token's signature and validity window and returns the
// embedded user ID.
func (m *TokenManager) Verify(tokenString string) (int, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, ErrInvalidToken
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
