// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package blast submits queries to the NCBI BLAST URL API and polls them
// until the zipped JSON2 result bundle is ready.
package blast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pdiddy/batchblast/pkg/types"
)

// DefaultBaseURL is the public BLAST URL API endpoint.
const DefaultBaseURL = "https://blast.ncbi.nlm.nih.gov/Blast.cgi"

const defaultSubmitAttempts = 10

var (
	// ErrSubmissionExhausted means no request id could be obtained after
	// every submission attempt.
	ErrSubmissionExhausted = errors.New("submission exhausted")

	// ErrRemoteFailed means the service reported the search as failed,
	// unknown, or hit a server error.
	ErrRemoteFailed = errors.New("remote search failed")
)

// Status is the outcome of a single status check.
type Status int

const (
	Pending Status = iota
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Markers searched for in status-check bodies, in precedence order.
var (
	markerWaiting     = []byte("Status=WAITING")
	markerFailed      = []byte("Status=FAILED")
	markerUnknown     = []byte("Status=UNKNOWN")
	markerServerError = []byte("An error has occurred on the server")
)

// ridInputPattern matches the hidden form field carrying the request id.
var ridInputPattern = regexp.MustCompile(`name="RID"\s+[^>]*value="([A-Z0-9]+)"`)

// ridInfoPattern matches the QBlastInfo block line "RID = XXXXXXXX".
var ridInfoPattern = regexp.MustCompile(`(?m)^\s*RID = ([A-Z0-9]+)\s*$`)

// Client owns all interaction with the remote service.
type Client struct {
	Session Session
	Config  types.BlastConfig
}

// NewClient builds a client backed by an HTTPSession.
func NewClient(cfg types.BlastConfig) *Client {
	return &Client{
		Session: &HTTPSession{
			Client:    &http.Client{Timeout: cfg.Timeout},
			UserAgent: cfg.UserAgent,
		},
		Config: cfg,
	}
}

func (c *Client) baseURL() string {
	if c.Config.BaseURL != "" {
		return c.Config.BaseURL
	}
	return DefaultBaseURL
}

// Submit posts query and returns the remote request id. Non-200 responses
// are retried up to Config.SubmitAttempts calls without backoff; a response
// without a request id is ErrSubmissionExhausted.
func (c *Client) Submit(ctx context.Context, query string) (string, error) {
	attempts := c.Config.SubmitAttempts
	if attempts <= 0 {
		attempts = defaultSubmitAttempts
	}
	size := strconv.Itoa(c.Config.HitlistSize)

	fields := url.Values{
		"CMD":          {"Put"},
		"PROGRAM":      {c.Config.Program},
		"DATABASE":     {c.Config.Database},
		"QUERY":        {query},
		"FORMAT_TYPE":  {"JSON2"},
		"HITLIST_SIZE": {size},
		"DESCRIPTIONS": {size},
		"ALIGNMENTS":   {size},
		"FILTER":       {c.Config.Filter},
	}
	if c.Config.Email != "" {
		fields.Set("EMAIL", c.Config.Email)
	}
	if c.Config.Tool != "" {
		fields.Set("TOOL", c.Config.Tool)
	}

	status, body, err := c.Session.PostForm(ctx, c.baseURL(), fields, attempts)
	if err != nil {
		return "", fmt.Errorf("submitting query: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d after %d attempts", ErrSubmissionExhausted, status, attempts)
	}

	rid := ParseRequestID(body)
	if rid == "" {
		return "", fmt.Errorf("%w: no request id in response", ErrSubmissionExhausted)
	}
	return rid, nil
}

// ParseRequestID extracts the request id from a submission response body.
// It returns "" when none is present.
func ParseRequestID(body []byte) string {
	if m := ridInputPattern.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	if m := ridInfoPattern.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}

// Poll performs one status check for rid. For Ready the returned bytes are
// the zipped result bundle; for Failed they are the diagnostic body, which
// is also written to Config.LogDir when set. HTTP status codes are ignored:
// the body alone decides the outcome.
func (c *Client) Poll(ctx context.Context, rid string) (Status, []byte, error) {
	params := url.Values{
		"CMD":         {"Get"},
		"RID":         {rid},
		"FORMAT_TYPE": {"JSON2"},
	}
	_, body, err := c.Session.Get(ctx, c.baseURL(), params)
	if err != nil {
		return Failed, nil, fmt.Errorf("checking status of %s: %w", rid, err)
	}

	status := ClassifyPoll(body)
	if status == Failed {
		if err := c.writeDiagnostic(rid, body); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not write diagnostic for %s: %v\n", rid, err)
		}
	}
	return status, body, nil
}

// ClassifyPoll maps a status-check body to a Status. A waiting marker wins
// over everything else; any failure marker yields Failed; anything else is
// treated as the result payload.
func ClassifyPoll(body []byte) Status {
	switch {
	case bytes.Contains(body, markerWaiting):
		return Pending
	case bytes.Contains(body, markerFailed),
		bytes.Contains(body, markerUnknown),
		bytes.Contains(body, markerServerError):
		return Failed
	default:
		return Ready
	}
}

func (c *Client) writeDiagnostic(rid string, body []byte) error {
	if c.Config.LogDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Config.LogDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.Config.LogDir, filepath.Base(rid)+".log"), body, 0o644)
}
