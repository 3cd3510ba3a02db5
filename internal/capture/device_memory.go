package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"veritas/internal/sentinel"
)

// MemoryDevice is an in-memory media layer used by tests and the demo binary.
// It records every opened stream so callers can assert on acquisition,
// release counts, and requested constraints.
type MemoryDevice struct {
	mu           sync.Mutex
	supported    map[string]bool
	denyAccess   bool
	failFinalize bool
	streams      []*MemoryStream
}

// NewMemoryDevice creates a device that reports the given mime types as
// supported. With no arguments, nothing is supported and the platform
// default applies.
func NewMemoryDevice(supportedTypes ...string) *MemoryDevice {
	supported := make(map[string]bool, len(supportedTypes))
	for _, t := range supportedTypes {
		supported[t] = true
	}
	return &MemoryDevice{supported: supported}
}

// SetDeny makes subsequent Open calls fail as a platform permission denial.
func (d *MemoryDevice) SetDeny(deny bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denyAccess = deny
}

// SetFailFinalize makes recorder finalization fail, for exercising the
// release-on-error path.
func (d *MemoryDevice) SetFailFinalize(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFinalize = fail
}

// Open implements Device.
func (d *MemoryDevice) Open(_ context.Context, c Constraints) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.denyAccess {
		return nil, sentinel.ErrPermissionDenied
	}
	s := &MemoryStream{device: d, constraints: c}
	d.streams = append(d.streams, s)
	return s, nil
}

// Supports implements Device.
func (d *MemoryDevice) Supports(mimeType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.supported[mimeType]
}

// LastStream returns the most recently opened stream, or nil.
func (d *MemoryDevice) LastStream() *MemoryStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// MemoryStream is the in-memory Stream implementation.
type MemoryStream struct {
	device      *MemoryDevice
	constraints Constraints

	mu         sync.Mutex
	closeCalls int
	recorder   *MemoryRecorder
}

// Constraints returns the constraints the stream was opened with.
func (s *MemoryStream) Constraints() Constraints {
	return s.constraints
}

// CloseCalls returns how many times Close was invoked. Release discipline
// tests assert this is exactly one.
func (s *MemoryStream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Closed reports whether the stream's tracks have been released.
func (s *MemoryStream) Closed() bool {
	return s.CloseCalls() > 0
}

// NewRecorder implements Stream.
func (s *MemoryStream) NewRecorder(mimeType string) (Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = &MemoryRecorder{stream: s, mimeType: mimeType}
	return s.recorder, nil
}

// Close implements Stream. Idempotent by contract; the call count is kept so
// tests can detect double release.
func (s *MemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// Recorder returns the recorder created on this stream, or nil.
func (s *MemoryStream) Recorder() *MemoryRecorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder
}

// MemoryRecorder is the in-memory Recorder implementation. Tests drive data
// delivery explicitly through Push.
type MemoryRecorder struct {
	stream   *MemoryStream
	mimeType string

	mu      sync.Mutex
	started bool
	onData  func([]byte)
}

// MimeType returns the codec identifier the recorder was created with.
func (r *MemoryRecorder) MimeType() string {
	return r.mimeType
}

// Start implements Recorder.
func (r *MemoryRecorder) Start(_ time.Duration, onData func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("recorder already started")
	}
	r.started = true
	r.onData = onData
	return nil
}

// Push simulates one periodic data delivery.
func (r *MemoryRecorder) Push(chunk []byte) {
	r.mu.Lock()
	onData := r.onData
	started := r.started
	r.mu.Unlock()

	if started && onData != nil {
		onData(chunk)
	}
}

// Stop implements Recorder.
func (r *MemoryRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false

	r.stream.device.mu.Lock()
	fail := r.stream.device.failFinalize
	r.stream.device.mu.Unlock()
	if fail {
		return errors.New("encoder flush failed")
	}
	return nil
}
