// Package auth verifies the bearer tokens workers present on outcome
// webhook calls. Tokens are HMAC-SHA256 signed JWTs over a shared secret
// distributed to the worker fleet at dispatch time.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/config"
)

// Claims carries the identity of the worker that signed a webhook call.
type Claims struct {
	// WorkerID is the agent session identifier the token was issued for.
	WorkerID string `json:"wid,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// TokenVerifier validates worker bearer tokens.
type TokenVerifier interface {
	// VerifyToken validates the token string and extracts the claims, or
	// returns ErrInvalidToken / ErrExpiredToken / ErrTokenNotYetValid.
	VerifyToken(ctx context.Context, tokenString string) (*Claims, error)
}

// TokenIssuer mints worker tokens. The coordinator issues one per dispatch
// so workers never hold the shared secret themselves.
type TokenIssuer interface {
	IssueToken(ctx context.Context, workerID string, lifetime time.Duration) (string, error)
}

// HMACTokenService signs and verifies tokens with HMAC-SHA256.
type HMACTokenService struct {
	signingKey []byte
	timeFunc   func() time.Time // Injectable for testing
	clockSkew  time.Duration
}

type webhookClaims struct {
	WorkerID string `json:"wid"`
	jwt.RegisteredClaims
}

// Ensure HMACTokenService implements both interfaces
var (
	_ TokenVerifier = (*HMACTokenService)(nil)
	_ TokenIssuer   = (*HMACTokenService)(nil)
)

// NewTokenService creates a token service from the webhook auth config.
func NewTokenService(cfg config.AuthConfig) (*HMACTokenService, error) {
	if len(cfg.WebhookJWTSecret) < 32 {
		return nil, fmt.Errorf("webhook jwt secret must be at least 32 characters")
	}

	return &HMACTokenService{
		signingKey: []byte(cfg.WebhookJWTSecret),
		timeFunc:   time.Now,
		clockSkew:  2 * time.Minute,
	}, nil
}

// IssueToken mints a signed token for the given worker.
func (s *HMACTokenService) IssueToken(
	ctx context.Context,
	workerID string,
	lifetime time.Duration,
) (string, error) {
	now := s.timeFunc()

	claims := webhookClaims{
		WorkerID: workerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   workerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign webhook token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a worker token and returns its claims.
func (s *HMACTokenService) VerifyToken(
	ctx context.Context,
	tokenString string,
) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	now := s.timeFunc()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&webhookClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		parserOpts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	cc, ok := token.Claims.(*webhookClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		WorkerID: cc.WorkerID,
		Subject:  cc.Subject,
		ID:       cc.ID,
	}
	if cc.IssuedAt != nil {
		claims.IssuedAt = cc.IssuedAt.Time
	}
	if cc.ExpiresAt != nil {
		claims.ExpiresAt = cc.ExpiresAt.Time
	}
	return claims, nil
}
