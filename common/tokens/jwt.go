// Package tokens issues and verifies the HMAC-signed agent tokens accepted by
// the gate and its live channel.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrInvalidTTL   = errors.New("token ttl must not be negative")
)

// UnknownAgent is the identity of a valid token naming no agent.
const UnknownAgent = "agent-unknown"

const issuer = "netsentry"

type Claims struct {
	AgentID string `json:"agent_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity resolves the agent named by the token: agent_id, then sub.
func (c *Claims) Identity() string {
	if c.AgentID != "" {
		return c.AgentID
	}
	if c.Subject != "" {
		return c.Subject
	}
	return UnknownAgent
}

type TokenGenerator struct {
	secret []byte
}

func NewTokenGenerator(secret string) *TokenGenerator {
	return &TokenGenerator{secret: []byte(secret)}
}

// GenerateAgentToken mints a token for agentID. A zero ttl never expires.
func (tg *TokenGenerator) GenerateAgentToken(agentID string, ttl time.Duration) (string, error) {
	if ttl < 0 {
		return "", ErrInvalidTTL
	}
	now := time.Now()
	claims := Claims{
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  agentID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tg.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature and expiry of tokenString.
func (tg *TokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tg.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
