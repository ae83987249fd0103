// Package auth resolves the agent identity behind a gate request.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/netsentry/netsentry/common/tokens"
	"github.com/netsentry/netsentry/ingest/internal/config"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// DefaultCertIdentity names a certificate-authenticated agent whose
// certificate carries no common name.
const DefaultCertIdentity = "mtls-agent"

// Authenticator applies the process-wide trust mode.
type Authenticator struct {
	mode   string
	tokens *tokens.TokenGenerator
}

func NewAuthenticator(mode, jwtSecret string) *Authenticator {
	return &Authenticator{mode: mode, tokens: tokens.NewTokenGenerator(jwtSecret)}
}

// Mode returns the configured trust mode.
func (a *Authenticator) Mode() string {
	return a.mode
}

// AuthenticateAgent returns the agent identity for an intake request.
func (a *Authenticator) AuthenticateAgent(r *http.Request) (string, error) {
	if a.mode == config.AuthModeMTLS {
		id, ok := PeerIdentity(r)
		if !ok {
			return "", fmt.Errorf("%w: client certificate required", ErrUnauthenticated)
		}
		return id, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization", ErrUnauthenticated)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", fmt.Errorf("%w: invalid authorization format", ErrUnauthenticated)
	}
	return a.verify(parts[1])
}

// AuthenticateSubscriber returns the identity of a live channel subscriber.
// The token comes from ?token= or the first Sec-WebSocket-Protocol value. In
// mtls mode a verified certificate is accepted when no token is offered.
func (a *Authenticator) AuthenticateSubscriber(r *http.Request) (string, error) {
	token := SubscriberToken(r)
	if token != "" {
		return a.verify(token)
	}
	if a.mode == config.AuthModeMTLS {
		if id, ok := PeerIdentity(r); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: missing token", ErrUnauthenticated)
}

func (a *Authenticator) verify(token string) (string, error) {
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return claims.Identity(), nil
}

// SubscriberToken extracts a live channel token without verifying it.
func SubscriberToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		return strings.TrimSpace(first)
	}
	return ""
}

// PeerIdentity returns the subject CN of a verified client certificate.
func PeerIdentity(r *http.Request) (string, bool) {
	if r.TLS == nil || len(r.TLS.VerifiedChains) == 0 || len(r.TLS.VerifiedChains[0]) == 0 {
		return "", false
	}
	cn := r.TLS.VerifiedChains[0][0].Subject.CommonName
	if cn == "" {
		cn = DefaultCertIdentity
	}
	return cn, true
}
