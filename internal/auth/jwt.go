package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTService handles access/refresh token signing and verification. The
// signing key is expected to come from the SecretStore under "auth_jwt_key"
// and rotated through it; rotation is enforced by the caller discarding the
// old JWTService, which makes every previously issued token fail signature
// verification immediately (spec §4.K: "rotatable, invalidates all
// outstanding sessions on rotation").
type JWTService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTService builds a JWT helper with the given secret and token expiry.
func NewJWTService(secret []byte, expiry time.Duration) *JWTService {
	return &JWTService{secret: secret, expiry: expiry}
}

// TokenType distinguishes an access token from a refresh token so a refresh
// token presented where an access token is expected is rejected, and vice
// versa.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

type Claims struct {
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
	Type  TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Generate issues a signed token of the given type for user.
func (s *JWTService) Generate(user *User, typ TokenType, expiry time.Duration) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", errors.New("user id required")
	}
	if expiry <= 0 {
		expiry = s.expiry
	}

	claims := Claims{
		Email: strings.TrimSpace(user.Email),
		Name:  strings.TrimSpace(user.Name),
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}
	if expiry <= 0 {
		claims.ExpiresAt = nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a token of the expected type, returning the
// claims embedded in it.
func (s *JWTService) Validate(token string, want TokenType) (*Claims, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Type != want {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
