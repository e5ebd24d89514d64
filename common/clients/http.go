package clients

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Logger interface for HTTP client logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

const userAgent = "flowmon/1"

// HTTPClient wraps http.Client for worker manager calls: correlation headers
// come from the context and every round trip is logged at debug level.
type HTTPClient struct {
	client *http.Client
	logger Logger
}

// NewHTTPClient creates a new HTTP client wrapper
func NewHTTPClient(client *http.Client, logger Logger) *HTTPClient {
	return &HTTPClient{
		client: client,
		logger: logger,
	}
}

// DoRequest creates and executes an HTTP request, extracting metadata from context.
// Requests without a request id in context get a fresh one.
func (c *HTTPClient) DoRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	requestID, ok := GetRequestID(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	if editorID, ok := GetEditorID(ctx); ok {
		req.Header.Set("X-Editor-ID", editorID)
		c.logger.Debug("added X-Editor-ID header from context", "editor_id", editorID)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("worker manager request failed",
			"method", method, "url", url, "request_id", requestID, "elapsed", time.Since(start), "error", err)
		return nil, err
	}
	c.logger.Debug("worker manager request",
		"method", method, "url", url, "request_id", requestID, "status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}
