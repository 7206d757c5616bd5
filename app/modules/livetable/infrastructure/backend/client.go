package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	submitPath  = "/submit"
	accountPath = "/account/"
	healthPath  = "/healthz"

	maxErrorBody = 4096
)

// SubmitResult is the ledger's verdict on one submission.
type SubmitResult struct {
	Accepted bool    `json:"accepted"`
	Error    string  `json:"error,omitempty"`
	Nonce    *uint64 `json:"nonce,omitempty"`
}

// Ledger is the subset of the backend the gateway talks to.
type Ledger interface {
	Submit(ctx context.Context, submission []byte) (SubmitResult, error)
	AccountNonce(ctx context.Context, publicKeyHex string) (uint64, error)
	Health(ctx context.Context) bool
}

// Client talks to the ledger's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ Ledger = (*Client)(nil)

// NewClient creates a client. A zero timeout disables the per-call deadline.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Submit posts an encoded submission envelope.
func (c *Client) Submit(ctx context.Context, submission []byte) (SubmitResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(submission))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: submit: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return SubmitResult{Accepted: true}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		result := parseRejection(body)
		if result.Error == "" {
			result.Error = resp.Status
		}
		c.logger.Debug("Ledger rejected submission",
			slog.Int("status", resp.StatusCode),
			slog.String("error", result.Error),
		)
		return result, nil
	case resp.StatusCode >= 500:
		return SubmitResult{}, fmt.Errorf("%w: submit returned %d", ErrTransport, resp.StatusCode)
	}
	return SubmitResult{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
}

// parseRejection accepts either a JSON rejection body or plain text.
func parseRejection(body []byte) SubmitResult {
	var result SubmitResult
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &result) == nil {
		result.Accepted = false
		return result
	}
	return SubmitResult{Error: string(trimmed)}
}

type accountResponse struct {
	Nonce uint64 `json:"nonce"`
}

// AccountNonce returns the next nonce the ledger expects from the account.
// Unknown accounts start at zero.
func (c *Client) AccountNonce(ctx context.Context, publicKeyHex string) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+accountPath+publicKeyHex, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build account request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: account: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, nil
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("%w: account returned %d", ErrTransport, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: account returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var out accountResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode account response: %w", err)
	}
	return out.Nonce, nil
}

// Health reports whether the ledger answers its health probe.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Ledger health probe failed", slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out struct {
		OK *bool `json:"ok"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&out); err != nil {
		return true
	}
	return out.OK == nil || *out.OK
}

// IsTransport reports whether err came from the transport rather than a verdict.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded)
}
