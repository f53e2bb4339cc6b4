package beelzebubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/xerrors"
)

// SecretHeader carries the shared secret that authorizes submissions.
const SecretHeader = "X-Secret-Key"

// SubmissionStatus is returned by the server to describe the outcome of a
// submission independently of the HTTP status code.
type SubmissionStatus string

const (
	SubmissionStatusOK              SubmissionStatus = "ok"
	SubmissionStatusUnauthenticated SubmissionStatus = "unauthenticated"
	SubmissionStatusDatabaseError   SubmissionStatus = "database_error"
)

// Submission is a single completed usage session reported by a client.
type Submission struct {
	Executable string    `json:"executable" validate:"required"`
	Name       *string   `json:"name"`
	Time       time.Time `json:"time" validate:"required"`
	// Duration is the session length in seconds.
	Duration int64 `json:"duration" validate:"gte=0"`
}

// DisplayString formats a submission for log output.
func (s Submission) DisplayString() string {
	name := s.Executable
	if s.Name != nil {
		name = *s.Name
	}
	return fmt.Sprintf("%s (%ds)", name, s.Duration)
}

type SubmissionResponse struct {
	Status SubmissionStatus `json:"status"`
}

// New returns a client for the usage ingestion API at serverURL.
func New(serverURL *url.URL) *Client {
	return &Client{
		URL:        serverURL,
		HTTPClient: &http.Client{},
	}
}

// Client talks to the beelzebub server.
type Client struct {
	URL        *url.URL
	HTTPClient *http.Client

	secret string
}

// SetSecret attaches a shared secret to all subsequent requests.
func (c *Client) SetSecret(secret string) {
	c.secret = secret
}

// Request performs an HTTP request with the body JSON-encoded. It is the
// caller's responsibility to close the response body.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	serverURL, err := c.URL.Parse(path)
	if err != nil {
		return nil, xerrors.Errorf("parse url: %w", err)
	}

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, xerrors.Errorf("marshal request body: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverURL.String(), buf)
	if err != nil {
		return nil, xerrors.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set(SecretHeader, c.secret)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// Submit reports one or more completed sessions. A non-2xx response is
// returned as *Error so callers can distinguish authentication failures
// from retryable server errors.
func (c *Client) Submit(ctx context.Context, submissions []Submission) error {
	res, err := c.Request(ctx, http.MethodPost, "/submit", submissions)
	if err != nil {
		return xerrors.Errorf("execute request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusCreated {
		return nil
	}
	return ReadBodyAsError(res)
}

// Healthz reports whether the server is reachable and serving.
func (c *Client) Healthz(ctx context.Context) error {
	res, err := c.Request(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return xerrors.Errorf("execute request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return ReadBodyAsError(res)
	}
	return nil
}

// Error is an unexpected response from the server.
type Error struct {
	StatusCode int
	Response   SubmissionResponse
}

func (e *Error) Error() string {
	if e.Response.Status != "" {
		return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Response.Status)
	}
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// ReadBodyAsError parses a non-successful response into an *Error. The body
// is decoded on a best-effort basis; servers behind proxies may return
// non-JSON error pages.
func ReadBodyAsError(res *http.Response) error {
	apiErr := &Error{
		StatusCode: res.StatusCode,
	}
	// Decode failures are fine, the status code alone is informative.
	_ = json.NewDecoder(res.Body).Decode(&apiErr.Response)
	return apiErr
}

// IsUnauthenticated reports whether err is an authentication failure, which
// must not be retried by the submitting client.
func IsUnauthenticated(err error) bool {
	var apiErr *Error
	if !xerrors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized
}
