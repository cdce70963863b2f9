// Package backend provides the HTTP client for the automation backend's
// request/response contract. The live channels are handled separately by
// internal/conn.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/autoapply/syncbridge/internal/core/domain"
)

const defaultBaseURL = "http://localhost:8000"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// Client is the HTTP client for the automation backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend client. The transport is instrumented with
// OpenTelemetry unless a custom HTTP client is supplied.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListInterventions fetches the current pending intervention list. This is
// the fallback poll source when the live channel is down.
func (c *Client) ListInterventions(ctx context.Context) ([]domain.Intervention, error) {
	var out []domain.Intervention
	if err := c.do(ctx, http.MethodGet, "/api/applications/v2/interventions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetIntervention fetches one intervention by id.
func (c *Client) GetIntervention(ctx context.Context, id string) (*domain.Intervention, error) {
	var out domain.Intervention
	if err := c.do(ctx, http.MethodGet, "/api/applications/v2/interventions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveIntervention submits a resolution for a pending intervention.
func (c *Client) ResolveIntervention(ctx context.Context, id string, req domain.ResolveRequest) (*domain.ResolveResult, error) {
	var out domain.ResolveResult
	path := "/api/applications/v2/interventions/" + url.PathEscape(id) + "/resolve"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions fetches session summaries, optionally only resumable ones.
func (c *Client) ListSessions(ctx context.Context, resumableOnly bool) ([]domain.Session, error) {
	path := "/api/applications/v2/sessions"
	if resumableOnly {
		path += "?resumable_only=true"
	}
	var out []domain.Session
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession fetches the full detail for one session.
func (c *Client) GetSession(ctx context.Context, id string) (*domain.SessionDetail, error) {
	var out domain.SessionDetail
	if err := c.do(ctx, http.MethodGet, "/api/applications/v2/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResumeSession asks the backend to resume a paused or blocked session.
// Resume is asynchronous server-side; the returned result reflects intent,
// not final status.
func (c *Client) ResumeSession(ctx context.Context, id string, opts domain.ResumeOptions) (*domain.ApplicationResult, error) {
	var out domain.ApplicationResult
	path := "/api/applications/v2/sessions/" + url.PathEscape(id) + "/resume"
	if err := c.do(ctx, http.MethodPost, path, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PauseSession asks the backend to pause an in-progress session.
func (c *Client) PauseSession(ctx context.Context, id string) (*domain.Session, error) {
	var out domain.Session
	path := "/api/applications/v2/sessions/" + url.PathEscape(id) + "/pause"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session and its history from the backend.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	var out struct {
		Status    string `json:"status"`
		SessionID string `json:"session_id"`
	}
	return c.do(ctx, http.MethodDelete, "/api/applications/v2/sessions/"+url.PathEscape(id), nil, &out)
}

// MarkApplied records that a human completed the application outside the
// automated flow.
func (c *Client) MarkApplied(ctx context.Context, id string) (*domain.Session, error) {
	var out domain.Session
	path := "/api/applications/v2/sessions/" + url.PathEscape(id) + "/mark-applied"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartApplication launches a new automated application attempt.
func (c *Client) StartApplication(ctx context.Context, req domain.StartRequest) (*domain.ApplicationResult, error) {
	var out domain.ApplicationResult
	if err := c.do(ctx, http.MethodPost, "/api/applications/v2/start", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ErrTransient(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrTransient(fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeError maps a backend error response onto the bridge error taxonomy.
func decodeError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			message = payload.Detail
		} else if payload.Error != "" {
			message = payload.Error
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusNotFound:
		return domain.ErrNotFound(message).WithStatusCode(status)
	case status >= 500:
		return domain.ErrTransient(message).WithStatusCode(status)
	default:
		return domain.ErrCommand(message).WithStatusCode(status)
	}
}
