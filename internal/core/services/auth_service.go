package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

// Dashboard scopes. Admin implies read.
const (
	ScopeRead  = "read"
	ScopeAdmin = "admin"
)

type authContextKey struct{}

// AuthService issues and checks the bearer tokens used by the dashboard.
type AuthService interface {
	GenerateToken(subject, scope string, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	CheckScope(claims *Claims, required string) error
}

type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

type authService struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

func NewAuthService(secret string, defaultTTL time.Duration) AuthService {
	return &authService{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// GenerateToken signs an HS256 token. A non-positive ttl uses the default.
func (s *authService) GenerateToken(subject, scope string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrUnauthorized
	}
	if scope != ScopeRead && scope != ScopeAdmin {
		return "", ErrUnauthorized
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.now()
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "roombot",
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer("roombot"))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

func (s *authService) CheckScope(claims *Claims, required string) error {
	if claims == nil {
		return ErrUnauthorized
	}
	switch {
	case claims.Scope == ScopeAdmin:
		return nil
	case claims.Scope == required:
		return nil
	default:
		return ErrUnauthorized
	}
}

// WithClaims stores validated claims on ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, authContextKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(authContextKey{}).(*Claims)
	if !ok || claims == nil {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
