package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the intake HTTP API.
type Client struct {
	baseURL string
	staffID string
	http    *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL, staffID string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		staffID: staffID,
		http:    &http.Client{Timeout: timeout},
	}
}

// Health returns an error unless GET /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// Submit posts s and classifies the response.
func (c *Client) Submit(ctx context.Context, s Submission) Result {
	path := "/v1/attendees"
	if s.Kind == KindCapture {
		path = "/v1/captures"
	}
	resp, err := c.do(ctx, http.MethodPost, path, s.Body, map[string]string{
		"Idempotency-Key": s.Key,
		"X-Staff-ID":      c.staffID,
	})
	if err != nil {
		return ResultFailed
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		return ResultCommitted
	case http.StatusAccepted:
		return ResultQueued
	case http.StatusOK:
		return ResultReplayed
	case http.StatusUnprocessableEntity:
		return ResultRejected
	default:
		return ResultFailed
	}
}

// PendingReviews counts pending review items, capped by the API page size.
func (c *Client) PendingReviews(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/review?status=PENDING&limit=500", nil, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("list reviews returned %d", resp.StatusCode)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode review list: %w", err)
	}
	return body.Count, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.http.Do(req)
}
