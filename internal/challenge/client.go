// Package challenge owns the challenge lifecycle: requesting a time-boxed
// challenge from the remote challenge service and running the advisory
// countdown toward its deadline.
package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"veritas/internal/policy"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/circuit"
)

const (
	defaultStartPath = "/api/challenge/start"

	// Deadline bounds are hard floor/ceiling for the displayed countdown,
	// regardless of the actual expiry delta.
	minDeadlineSeconds     = 5
	maxDeadlineSeconds     = 60
	defaultDeadlineSeconds = 30
)

// StartRequest is the input to a challenge start call.
type StartRequest struct {
	SessionID domain.SessionID
	Mode      policy.Mode
	Locale    string
}

// Session is one issued challenge. It exists from a successful start call
// until superseded by a new one.
type Session struct {
	ID              domain.ChallengeID
	Text            string
	DeadlineSeconds int
	CreatedAt       time.Time
}

// StartError carries the challenge service's raw rejection payload so the
// presentation layer can surface it verbatim.
type StartError struct {
	Status int
	Body   []byte
}

func (e *StartError) Error() string {
	return fmt.Sprintf("challenge start rejected: status %d: %s", e.Status, e.Body)
}

// Client talks to the remote challenge service.
type Client struct {
	baseURL   string
	startPath string
	http      *http.Client
	logger    *slog.Logger
	now       func() time.Time
	breaker   *circuit.Breaker
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client (timeouts live there).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStartPath overrides the challenge start path.
func WithStartPath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.startPath = p
		}
	}
}

// WithNow injects the clock used for deadline computation. Tests use this to
// pin "now" against a known expires_at.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBreaker replaces the default circuit breaker guarding transport calls.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// New creates a challenge client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		startPath: defaultStartPath,
		http:      &http.Client{Timeout: 25 * time.Second},
		logger:    slog.Default(),
		now:       time.Now,
		breaker:   circuit.New("challenge-start"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type startPayload struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	Locale    string `json:"locale"`
}

type startResponse struct {
	ChallengeID   string `json:"challenge_id"`
	ChallengeText string `json:"challenge_text"`
	ExpiresAt     string `json:"expires_at"`
}

// Start requests a new challenge. On a non-success response it fails with a
// StartError (wrapped under CodeStartFailed) and no session is created.
func (c *Client) Start(ctx context.Context, req StartRequest) (*Session, error) {
	body, err := json.Marshal(startPayload{
		SessionID: req.SessionID.String(),
		Mode:      string(req.Mode),
		Locale:    req.Locale,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode challenge start request")
	}

	if c.breaker.IsOpen() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "challenge service circuit open")
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		if c.breaker.RecordFailure() {
			c.logger.Warn("circuit_opened", "breaker", c.breaker.Name())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "challenge service unreachable")
	}
	c.breaker.RecordSuccess()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read challenge start response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("challenge_start_rejected", "status", resp.StatusCode)
		return nil, dErrors.Wrap(&StartError{Status: resp.StatusCode, Body: raw},
			dErrors.CodeStartFailed, "challenge start failed")
	}

	var decoded startResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStartFailed, "decode challenge start response")
	}
	if decoded.ChallengeID == "" {
		return nil, dErrors.New(dErrors.CodeStartFailed, "challenge service returned no challenge_id")
	}

	now := c.now()
	sess := &Session{
		ID:              domain.ChallengeID(decoded.ChallengeID),
		Text:            decoded.ChallengeText,
		DeadlineSeconds: DeadlineSeconds(decoded.ExpiresAt, now),
		CreatedAt:       now,
	}
	c.logger.Info("challenge_started",
		"challenge_id", sess.ID,
		"deadline_seconds", sess.DeadlineSeconds,
	)
	return sess, nil
}

// post sends the start request. No retry: a transport failure surfaces
// immediately and only feeds the breaker.
func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.startPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.http.Do(httpReq)
}

// DeadlineSeconds derives the displayed countdown from an expires_at
// timestamp: clamp(floor(delta), 5, 60) when the timestamp parses, 30 when it
// is absent or unparseable.
func DeadlineSeconds(expiresAt string, now time.Time) int {
	if expiresAt == "" {
		return defaultDeadlineSeconds
	}
	t, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return defaultDeadlineSeconds
	}
	delta := int(math.Floor(t.Sub(now).Seconds()))
	if delta < minDeadlineSeconds {
		return minDeadlineSeconds
	}
	if delta > maxDeadlineSeconds {
		return maxDeadlineSeconds
	}
	return delta
}
