// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"io"
	"net/http"
	"time"
)

// RetryDelay is the fixed pause between attempts. The remote BLAST service
// is retried without backoff, so the default is zero; tests and callers that
// want politeness can raise it.
var RetryDelay time.Duration

const defaultMaxAttempts = 10

// DoWithRetry executes an HTTP request and repeats it while the response
// status is not 200 OK, up to maxAttempts calls in total. When maxAttempts
// is 0 the default (10) is used.
//
// Request bodies are rewound through req.GetBody for every attempt, so
// requests built by http.NewRequest with a strings/bytes reader can be
// retried. On each non-200 the response body is drained and closed before
// the next attempt. Transport errors are returned immediately. After
// exhausting attempts the last non-200 response is returned so the caller
// can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for attempt := 1; ; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}

		resp, err := client.Do(r)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusOK || attempt >= maxAttempts {
			return resp, nil
		}

		// Drain and close the body before retrying.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(RetryDelay):
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
