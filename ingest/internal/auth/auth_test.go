package auth

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/common/tokens"
	"github.com/netsentry/netsentry/ingest/internal/config"
)

const secret = "test-secret"

func mintToken(t *testing.T, agent string) string {
	t.Helper()
	token, err := tokens.NewTokenGenerator(secret).GenerateAgentToken(agent, time.Hour)
	require.NoError(t, err)
	return token
}

func withPeerCert(r *http.Request, cn string) *http.Request {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: cn}}
	r.TLS = &tls.ConnectionState{VerifiedChains: [][]*x509.Certificate{{cert}}}
	return r
}

func TestAuthenticateAgent_Token(t *testing.T) {
	a := NewAuthenticator(config.AuthModeToken, secret)

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer " + mintToken(t, "sensor-01"), want: "sensor-01"},
		{name: "missing", wantErr: true},
		{name: "wrong scheme", header: "Basic abc", wantErr: true},
		{name: "empty token", header: "Bearer ", wantErr: true},
		{name: "garbage", header: "Bearer abc.def.ghi", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/agent/event", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			id, err := a.AuthenticateAgent(req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestAuthenticateAgent_MTLS(t *testing.T) {
	a := NewAuthenticator(config.AuthModeMTLS, secret)

	req := withPeerCert(httptest.NewRequest(http.MethodPost, "/agent/event", nil), "edge-sensor")
	id, err := a.AuthenticateAgent(req)
	require.NoError(t, err)
	assert.Equal(t, "edge-sensor", id)

	req = withPeerCert(httptest.NewRequest(http.MethodPost, "/agent/event", nil), "")
	id, err = a.AuthenticateAgent(req)
	require.NoError(t, err)
	assert.Equal(t, DefaultCertIdentity, id)

	req = httptest.NewRequest(http.MethodPost, "/agent/event", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "x"))
	_, err = a.AuthenticateAgent(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticateSubscriber(t *testing.T) {
	token := mintToken(t, "dashboard")

	a := NewAuthenticator(config.AuthModeToken, secret)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	id, err := a.AuthenticateSubscriber(req)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", id)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Sec-WebSocket-Protocol", token+", other")
	id, err = a.AuthenticateSubscriber(req)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", id)

	_, err = a.AuthenticateSubscriber(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = a.AuthenticateSubscriber(httptest.NewRequest(http.MethodGet, "/ws?token=bad", nil))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Certificates only count in mtls mode.
	req = withPeerCert(httptest.NewRequest(http.MethodGet, "/ws", nil), "console")
	_, err = a.AuthenticateSubscriber(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	m := NewAuthenticator(config.AuthModeMTLS, secret)
	id, err = m.AuthenticateSubscriber(req)
	require.NoError(t, err)
	assert.Equal(t, "console", id)
	assert.Equal(t, config.AuthModeMTLS, m.Mode())
}

func TestPeerIdentity_NoTLS(t *testing.T) {
	_, ok := PeerIdentity(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	_, ok = PeerIdentity(req)
	assert.False(t, ok)
}
