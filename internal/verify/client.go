package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"veritas/internal/capture"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/circuit"
)

const defaultVerifyPath = "/api/multimodal/verify"

// Client talks to the remote verification service.
type Client struct {
	baseURL string
	path    string
	http    *http.Client
	logger  *slog.Logger
	breaker *circuit.Breaker
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
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

// WithPath overrides the verification path.
func WithPath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.path = p
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

// New creates a verification client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		path:    defaultVerifyPath,
		http:    &http.Client{Timeout: 25 * time.Second},
		logger:  slog.Default(),
		breaker: circuit.New("multimodal-verify"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify validates the submission locally, posts it as multipart, and
// normalizes the response. Local validation failures prevent any network
// call. Service-reported failures come back as a DecisionError result, not
// as an error.
func (c *Client) Verify(ctx context.Context, sub Submission) (*Result, error) {
	if err := validate(sub); err != nil {
		return nil, err
	}

	body, contentType, err := assemble(sub)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "assemble verification request")
	}

	if c.breaker.IsOpen() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "verification service circuit open")
	}

	resp, err := c.post(ctx, body.Bytes(), contentType)
	if err != nil {
		if c.breaker.RecordFailure() {
			c.logger.Warn("circuit_opened", "breaker", c.breaker.Name())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification service unreachable")
	}
	c.breaker.RecordSuccess()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read verification response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("verify_rejected",
			"status", resp.StatusCode,
			"challenge_id", sub.Challenge.ID,
		)
		return errorResult(raw), nil
	}

	var decoded verifyResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode verification response")
	}

	result := &Result{
		Decision:  decoded.FinalDecision,
		ProofFile: decoded.ProofFile,
		Breakdown: decoded.Breakdown,
		Flags:     decoded.FlagsSummary,
	}
	if result.Breakdown == nil {
		result.Breakdown = map[string]any{}
	}
	if result.Flags == nil {
		result.Flags = []any{}
	}

	c.logger.Info("verify_completed",
		"decision", result.Decision,
		"challenge_id", sub.Challenge.ID,
		"flags", len(result.Flags),
	)
	return result, nil
}

// post sends the multipart body. No retry: a transport failure surfaces
// immediately and only feeds the breaker.
func (c *Client) post(ctx context.Context, body []byte, contentType string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	return c.http.Do(httpReq)
}

// validate enforces the pre-submission requirements in a fixed order. All
// failures here are local: no network call may be made.
func validate(sub Submission) error {
	if sub.Capture == nil {
		return dErrors.New(dErrors.CodeNoRecording, "no recording available")
	}
	if sub.Challenge == nil {
		return dErrors.New(dErrors.CodeMissingChallenge, "no active challenge")
	}
	if strings.TrimSpace(sub.EnrollmentFace) == "" {
		return dErrors.New(dErrors.CodeMissingEnrollment, "enrollment_id_face required")
	}
	if sub.Policy.RequiresVoice() && strings.TrimSpace(sub.EnrollmentVoice) == "" {
		return dErrors.New(dErrors.CodeMissingEnrollment, "enrollment_id_voice required")
	}
	return nil
}

// assemble builds the multipart body. For SPOKEN mode the same clip bytes
// are attached a second time as the audio part: no client-side audio-track
// extraction happens, the service demuxes the combined clip.
func assemble(sub Submission) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"policy_id":          string(sub.Policy.Policy),
		"enrollment_id_face": strings.TrimSpace(sub.EnrollmentFace),
		"challenge_id":       sub.Challenge.ID.String(),
	}
	if sub.Policy.RequiresVoice() {
		fields["enrollment_id_voice"] = strings.TrimSpace(sub.EnrollmentVoice)
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	ext := clipExtension(sub.Capture.MimeType)
	if err := writeClip(w, "clip_video", "clip_video"+ext, sub.Capture); err != nil {
		return nil, "", err
	}
	if sub.Policy.RequiresVoice() {
		if err := writeClip(w, "clip_audio", "clip_audio"+ext, sub.Capture); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeClip(w *multipart.Writer, field, filename string, clip *capture.Result) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		`form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", clip.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(clip.Blob)
	return err
}

// clipExtension maps the negotiated mime type to the upload filename
// extension: .mp4 iff the mime indicates an MP4 container, .webm otherwise.
func clipExtension(mimeType string) string {
	if strings.Contains(strings.ToLower(mimeType), "mp4") {
		return ".mp4"
	}
	return ".webm"
}

// errorResult surfaces a non-success response body as diagnostics on a
// normal ERROR-decision result.
func errorResult(raw []byte) *Result {
	diagnostics := map[string]any{}
	if err := json.Unmarshal(raw, &diagnostics); err != nil {
		diagnostics = map[string]any{"raw": string(raw)}
	}
	return &Result{
		Decision:    DecisionError,
		Breakdown:   map[string]any{},
		Flags:       []any{},
		Diagnostics: diagnostics,
	}
}
