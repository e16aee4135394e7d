// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package blast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/batchblast/internal/httputil"
)

// Session is the transport the client talks through. Bodies are returned
// whole and unmodified so binary payloads survive.
type Session interface {
	// PostForm sends url-encoded fields, repeating non-200 responses up to
	// attempts calls in total.
	PostForm(ctx context.Context, endpoint string, fields url.Values, attempts int) (int, []byte, error)

	// Get issues a single GET with query parameters.
	Get(ctx context.Context, endpoint string, params url.Values) (int, []byte, error)
}

// HTTPSession implements Session over net/http.
type HTTPSession struct {
	Client    *http.Client
	UserAgent string
}

// PostForm sends fields as application/x-www-form-urlencoded.
func (s *HTTPSession) PostForm(ctx context.Context, endpoint string, fields url.Values, attempts int) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(fields.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, attempts)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// Get issues a single GET request; it never retries.
func (s *HTTPSession) Get(ctx context.Context, endpoint string, params url.Values) (int, []byte, error) {
	reqURL := endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}
