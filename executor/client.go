// ABOUTME: HTTP client for the remote code execution service.
// ABOUTME: Distinguishes connectivity failures from remote rejections so callers can react differently.
package executor

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
)

const defaultTimeout = 3 * time.Minute

// ConnectError means the execution service could not be reached at all.
// Callers treat this as fatal for the workflow rather than something
// self-healing can fix.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("execution service unreachable: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsConnectError reports whether err (or anything it wraps) is a ConnectError.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

// RemoteError means the service answered but refused or failed the request.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("execution service returned %d: %s", e.Status, e.Body)
}

// Result is the outcome of one code submission. Logs always carries whatever
// output the run produced, success or not.
type Result struct {
	Logs        string `json:"logs"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
}

// Client submits code to the execution service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-submission timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the execution service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitRequest struct {
	Code string `json:"code"`
}

// Submit runs the code remotely and returns its logs. A non-2xx response is a
// RemoteError; a transport failure is a ConnectError.
func (c *Client) Submit(ctx context.Context, code string) (Result, error) {
	payload, err := json.Marshal(submitRequest{Code: code})
	if err != nil {
		return Result{}, fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build submission: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, &ConnectError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Result{}, &ConnectError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &RemoteError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		// Some execution backends answer with raw text logs.
		res.Logs = string(body)
	}
	return res, nil
}
