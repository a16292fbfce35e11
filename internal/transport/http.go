// Package transport implements the core-facing HTTP contract from spec
// §4.9: a minimal gzip-encoded JSON POST with a keyed auth header.
//
// The teacher's HTTP-capable dependency, colly, is a scraping/DOM
// extraction engine built around crawling callbacks; it has no facility
// for issuing an arbitrary gzip-compressed JSON POST with a fixed header
// set, so it cannot serve this concern (see DESIGN.md). net/http is the
// idiomatic choice here and requires no adaptation from a scraping
// client.
package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client is the core-facing HTTP façade shared across sessions.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New constructs a Client with a bounded connect/read/write timeout
// (spec §5 "Timeouts", ~30s).
func New(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	Code        int
	URL         string
	BodyPreview string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.Code, e.URL, e.BodyPreview)
}

// NetworkError wraps a failure that never produced an HTTP response.
type NetworkError struct{ Cause error }

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Cause) }
func (e *NetworkError) Unwrap() error  { return e.Cause }

// DecodeError wraps a malformed response body.
type DecodeError struct{ Cause error }

func (e *DecodeError) Error() string { return fmt.Sprintf("decode error: %v", e.Cause) }
func (e *DecodeError) Unwrap() error  { return e.Cause }

// Post gzip-compresses body, POSTs it to path under the configured base
// URL with the Desmo-Key header and JSON content type, and returns the
// raw response bytes alongside the status code actually observed (0 when
// no response was obtained, e.g. a network failure). The caller is
// expected to run the (status, err) pair through the upload classifier.
func (c *Client) Post(ctx context.Context, path string, body any) (status int, respBody []byte, err error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, &DecodeError{Cause: err}
	}

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(payload); err != nil {
		return 0, nil, &DecodeError{Cause: err}
	}
	if err := zw.Close(); err != nil {
		return 0, nil, &DecodeError{Cause: err}
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(gz.Bytes()))
	if err != nil {
		return 0, nil, &NetworkError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Desmo-Key", c.apiKey)
	req.Header.Set("Desmo-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &DecodeError{Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := string(data)
		if len(preview) > 256 {
			preview = preview[:256]
		}
		return resp.StatusCode, data, &StatusError{Code: resp.StatusCode, URL: url, BodyPreview: preview}
	}

	return resp.StatusCode, data, nil
}
