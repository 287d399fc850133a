package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"allyboard/pkg/gateway/types"

	"github.com/sirupsen/logrus"
)

const maxErrorBody = 4096

// Client posts resolved messages to the chat platform gateway.
type Client interface {
	Dispatch(ctx context.Context, req types.DispatchRequest) (*types.DispatchResponse, error)
}

// APIError is returned for non-2xx replies and for envelopes with ok=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error: status %d: %s", e.StatusCode, e.Message)
}

type HTTPClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    *logrus.Logger
}

func NewClient(baseURL, authToken string, httpClient *http.Client) *HTTPClient {
	return NewClientWithLogger(baseURL, authToken, httpClient, nil)
}

func NewClientWithLogger(baseURL, authToken string, httpClient *http.Client, logger *logrus.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &HTTPClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authToken: authToken,
		client:    httpClient,
		logger:    logger,
	}
}

func (c *HTTPClient) Dispatch(ctx context.Context, payload types.DispatchRequest) (*types.DispatchResponse, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("gateway base URL is not configured")
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/dispatch"
	c.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"dry_run":  payload.DryRun,
		"mentions": len(payload.MentionRoleIDs),
	}).Debug("Sending dispatch request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result types.DispatchResponse
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := result.Error
		if decodeErr != nil || msg == "" {
			msg = truncate(strings.TrimSpace(string(body)), maxErrorBody)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if !result.OK {
		msg := result.Error
		if msg == "" {
			msg = "gateway reported failure"
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
