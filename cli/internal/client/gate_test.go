package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGateClient(t *testing.T) {
	c := NewGateClient("http://localhost:4000/", "tok")

	assert.Equal(t, "http://localhost:4000", c.baseURL)
	assert.Equal(t, 10*time.Second, c.client.Timeout)
}

func TestSendEvent_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agent/event", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer agent-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "10.0.0.1", payload["src"])

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"accepted","agent":"agent-1"}`))
	}))
	defer server.Close()

	c := NewGateClient(server.URL, "agent-token")
	agent, err := c.SendEvent(context.Background(), map[string]string{"src": "10.0.0.1", "dst": "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", agent)
}

func TestSendEvent_ValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid payload","fields":["dst","proto"]}`))
	}))
	defer server.Close()

	_, err := NewGateClient(server.URL, "t").SendEvent(context.Background(), map[string]string{"src": "a"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, []string{"dst", "proto"}, apiErr.Fields)
	assert.Contains(t, err.Error(), "dst, proto")
}

func TestSendEvent_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit"}`))
	}))
	defer server.Close()

	_, err := NewGateClient(server.URL, "t").SendEvent(context.Background(), map[string]string{})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSubmitAlert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/alerts", r.URL.Path)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "PortScan", payload["type"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"accepted","alert":{"id":"alert-1","type":"PortScan","severity":"medium"}}`))
	}))
	defer server.Close()

	alert, err := NewGateClient(server.URL, "").SubmitAlert(context.Background(), map[string]string{"type": "PortScan"})
	require.NoError(t, err)
	assert.Equal(t, "alert-1", alert.ID)
	assert.Equal(t, "medium", alert.Severity)
}

func TestListSignatures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":1,"name":"SYN-Flood","type":"process","patterns":["synflood"],"active":true}]`))
	}))
	defer server.Close()

	sigs, err := NewGateClient(server.URL, "").ListSignatures(context.Background())
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "SYN-Flood", sigs[0].Name)
	assert.Equal(t, []string{"synflood"}, sigs[0].Patterns)
}

func TestSetSignatureActive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/signatures/4/deactivate", r.URL.Path)
		w.Write([]byte(`{"id":4,"name":"X","active":false}`))
	}))
	defer server.Close()

	sig, err := NewGateClient(server.URL, "").SetSignatureActive(context.Background(), 4, false)
	require.NoError(t, err)
	assert.False(t, sig.Active)
}

func TestListAlerts_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewGateClient(server.URL, "").ListAlerts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Service Unavailable", apiErr.Message)
}
