package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// TransportError is the single failure signal for a request: either the
// network call failed (Status == 0) or the server answered outside 2xx.
type TransportError struct {
	Method  string
	URL     string
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Message)
}

// IsTransportError reports whether err wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs exactly one request/response cycle per call.
// No retries, no caching.
type Client struct {
	http Doer
}

func New(d Doer) *Client {
	if d == nil {
		d = http.DefaultClient
	}
	return &Client{http: d}
}

// Do sends body (JSON-encoded when non-nil) and returns the response body as
// raw JSON. An empty 2xx body is returned as JSON null.
func (c *Client) Do(ctx context.Context, method, url string, body any) (json.RawMessage, error) {
	raw, err := c.do(ctx, method, url, body)
	if err != nil {
		log.Printf("api call failed: %v", err)
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, url string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Message: classifyHTTPError(err)}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Status: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Method: method, URL: url, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if len(bytes.TrimSpace(b)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(b) {
		return nil, &TransportError{Method: method, URL: url, Status: resp.StatusCode, Message: "response body is not valid JSON"}
	}

	return json.RawMessage(b), nil
}

// classifyHTTPError produces a stable, human-readable reason.
func classifyHTTPError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case strings.Contains(err.Error(), "connection refused"):
		return "connection refused"
	}
	return err.Error()
}
