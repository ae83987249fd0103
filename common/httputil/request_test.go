package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(`{"type":"port-scan"}`))
	var v struct {
		Type string `json:"type"`
	}
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &v))
	assert.Equal(t, "port-scan", v.Type)
}

func TestDecodeJSON_Errors(t *testing.T) {
	var v map[string]interface{}

	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(""))
	assert.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), req, &v), ErrEmptyBody)

	req = httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader("{not json"))
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &v))

	big := strings.Repeat("a", MaxBodyBytes+10)
	req = httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(`"`+big+`"`))
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &v))
}

func TestParseIntParam(t *testing.T) {
	assert.Equal(t, 5, ParseIntParam("", 5))
	assert.Equal(t, 5, ParseIntParam("abc", 5))
	assert.Equal(t, 42, ParseIntParam("42", 5))
	assert.Equal(t, -1, ParseIntParam("-1", 5))
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=0", 50},
		{"?limit=5000", 500},
		{"?limit=x", 50},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/audit"+tt.query, nil)
			assert.Equal(t, tt.want, ParseLimit(req, 50, 500))
		})
	}
}
