package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"veritas/internal/policy"
	"veritas/internal/sentinel"
	dErrors "veritas/pkg/domain-errors"
)

// State is the capture lifecycle position.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiring:
		return "ACQUIRING_DEVICE"
	case StateRecording:
		return "RECORDING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Result is the finalized clip of one recording cycle. Immutable after creation.
type Result struct {
	Blob     []byte
	MimeType string
}

const (
	// defaultMimeType tags the result when no codec candidate was supported
	// and the platform default was used.
	defaultMimeType = "video/webm"

	defaultChunkInterval = 200 * time.Millisecond
)

// codecPreferences is the ordered negotiation list: high-quality video+audio
// container first, then fallbacks, then the alternate container format.
var codecPreferences = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
	"video/mp4",
}

// Controller drives one device capture lifecycle:
// IDLE → ACQUIRING_DEVICE → RECORDING → STOPPED.
// It exclusively owns the device stream between acquisition and release.
type Controller struct {
	device   Device
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	state    State
	stream   Stream
	recorder Recorder
	mimeType string
	result   *Result

	chunksMu sync.Mutex
	chunks   [][]byte
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger sets the logger for the controller.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithChunkInterval overrides the periodic data delivery interval.
func WithChunkInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// NewController creates a capture controller over the given device layer.
func NewController(device Device, opts ...Option) *Controller {
	if device == nil {
		panic("capture.NewController: device is required")
	}
	c := &Controller{
		device:   device,
		logger:   slog.Default(),
		interval: defaultChunkInterval,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MimeType returns the negotiated codec identifier, or "" when no candidate
// was supported and the platform default is in use.
func (c *Controller) MimeType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mimeType
}

// Result returns the clip of the last completed recording cycle, if any.
func (c *Controller) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Start acquires the device and begins recording. Legal only from IDLE or
// STOPPED; a prior result, if any, is discarded. Audio is requested iff the
// mode is SPOKEN.
func (c *Controller) Start(ctx context.Context, mode policy.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle && c.state != StateStopped {
		return dErrors.New(dErrors.CodeInvalidState, "capture already in progress")
	}
	c.result = nil
	c.mimeType = ""
	c.setChunks(nil)
	c.state = StateAcquiring

	stream, err := c.device.Open(ctx, Constraints{Video: true, Audio: mode == policy.ModeSpoken})
	if err != nil {
		c.state = StateIdle
		if errors.Is(err, sentinel.ErrPermissionDenied) {
			return dErrors.Wrap(err, dErrors.CodeDeviceDenied, "camera or microphone access denied")
		}
		return dErrors.Wrap(err, dErrors.CodeDeviceDenied, "device request failed")
	}
	c.stream = stream

	for _, candidate := range codecPreferences {
		if c.device.Supports(candidate) {
			c.mimeType = candidate
			break
		}
	}

	recorder, err := stream.NewRecorder(c.mimeType)
	if err != nil {
		c.releaseLocked()
		c.state = StateIdle
		return dErrors.Wrap(err, dErrors.CodeInternal, "create recorder")
	}
	if err := recorder.Start(c.interval, c.appendChunk); err != nil {
		c.releaseLocked()
		c.state = StateIdle
		return dErrors.Wrap(err, dErrors.CodeInternal, "start recorder")
	}
	c.recorder = recorder
	c.state = StateRecording

	c.logger.Info("capture_started",
		"mode", mode,
		"mime_type", c.mimeType,
	)
	return nil
}

// Stop finalizes the recording, concatenates the buffered chunks into a
// single immutable result, and releases the device stream exactly once, even
// when finalization fails. No-op when already stopped or idle.
func (c *Controller) Stop() (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRecording:
		// proceed
	case StateStopped:
		return c.result, nil
	default:
		return nil, nil
	}

	finalizeErr := c.recorder.Stop()
	c.releaseLocked()

	if finalizeErr != nil {
		c.setChunks(nil)
		c.state = StateIdle
		return nil, dErrors.Wrap(finalizeErr, dErrors.CodeInternal, "finalize recording")
	}

	blob := c.takeChunks()
	mime := c.mimeType
	if mime == "" {
		mime = defaultMimeType
	}
	c.result = &Result{Blob: blob, MimeType: mime}
	c.state = StateStopped

	c.logger.Info("capture_stopped",
		"mime_type", mime,
		"size_bytes", len(blob),
	)
	return c.result, nil
}

// Reset releases any held device resources and discards buffered chunks and
// the current result, returning the controller to IDLE. Idempotent; used when
// the policy or challenge changes under a pending capture.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	c.setChunks(nil)
	c.result = nil
	c.mimeType = ""
	c.state = StateIdle
}

// releaseLocked releases the device stream. Safe to call on every exit path:
// the stream reference is cleared so a second call is a no-op.
func (c *Controller) releaseLocked() {
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	c.recorder = nil
}

func (c *Controller) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.chunksMu.Lock()
	defer c.chunksMu.Unlock()
	c.chunks = append(c.chunks, chunk)
}

func (c *Controller) setChunks(chunks [][]byte) {
	c.chunksMu.Lock()
	defer c.chunksMu.Unlock()
	c.chunks = chunks
}

func (c *Controller) takeChunks() []byte {
	c.chunksMu.Lock()
	defer c.chunksMu.Unlock()

	size := 0
	for _, chunk := range c.chunks {
		size += len(chunk)
	}
	blob := make([]byte, 0, size)
	for _, chunk := range c.chunks {
		blob = append(blob, chunk...)
	}
	c.chunks = nil
	return blob
}
