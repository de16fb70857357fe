package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/config"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

var signingMethod = jwt.SigningMethodHS256

type Claims struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email,omitempty"`
	Role   orders.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor is the order core's view of the token holder.
func (c *Claims) Actor() orders.Actor {
	return orders.Actor{ID: c.UserID, Role: c.Role}
}

// JWTService mints and validates HS256 access tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTService(cfg config.AuthConfig) (*JWTService, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	return &JWTService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}, nil
}

func (s *JWTService) Issue(userID, email string, role orders.Role) (string, time.Time, error) {
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("invalid role %q", role)
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing jwt: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *JWTService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != signingMethod {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || !claims.Role.Valid() || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
