// Package client talks to the gate's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/netsentry/netsentry/common/models"
)

// ErrRateLimited is returned when the gate answers 429.
var ErrRateLimited = errors.New("rate limited")

// APIError is a non-success answer from the gate.
type APIError struct {
	Status  int
	Message string
	Fields  []string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("gate returned %d: %s (%s)", e.Status, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("gate returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

type GateClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewGateClient(baseURL, token string) *GateClient {
	return &GateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SendEvent posts one agent event and returns the identity the gate
// attributed it to.
func (c *GateClient) SendEvent(ctx context.Context, event any) (string, error) {
	var resp struct {
		Status string `json:"status"`
		Agent  string `json:"agent"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/agent/event", event, http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	return resp.Agent, nil
}

// SubmitAlert posts an alert in the lightweight submission format.
func (c *GateClient) SubmitAlert(ctx context.Context, alert map[string]string) (*models.Alert, error) {
	var resp struct {
		Status string       `json:"status"`
		Alert  models.Alert `json:"alert"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/alerts", alert, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return &resp.Alert, nil
}

func (c *GateClient) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := c.do(ctx, http.MethodGet, "/api/alerts", nil, http.StatusOK, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *GateClient) ListSignatures(ctx context.Context) ([]models.Signature, error) {
	var sigs []models.Signature
	if err := c.do(ctx, http.MethodGet, "/api/signatures", nil, http.StatusOK, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

// SetSignatureActive toggles a stored signature on the gate.
func (c *GateClient) SetSignatureActive(ctx context.Context, id int64, active bool) (*models.Signature, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	var sig models.Signature
	path := fmt.Sprintf("/api/signatures/%d/%s", id, action)
	if err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

func (c *GateClient) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error  string   `json:"error"`
			Fields []string `json:"fields"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Fields = payload.Fields
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
