// Package capture owns device-stream acquisition, codec negotiation, and the
// record/stop lifecycle that produces a single result clip.
package capture

import (
	"context"
	"time"
)

// Constraints state which device tracks a capture needs.
type Constraints struct {
	Video bool
	Audio bool
}

// Device is the platform media layer (camera and microphone). Implementations
// return sentinel.ErrPermissionDenied (optionally wrapped) when the platform
// denies access.
type Device interface {
	// Open acquires a stream of device tracks matching the constraints.
	Open(ctx context.Context, c Constraints) (Stream, error)

	// Supports reports whether the platform can record the given mime type.
	Supports(mimeType string) bool
}

// Stream is an open, exclusively-owned set of device tracks.
type Stream interface {
	// NewRecorder creates a recorder for the stream. An empty mime type means
	// the platform default codec.
	NewRecorder(mimeType string) (Recorder, error)

	// Close releases every track. Must be idempotent: closing an
	// already-closed stream is a no-op, not an error.
	Close() error
}

// Recorder encodes the stream and delivers data chunks periodically.
type Recorder interface {
	// Start begins periodic data delivery, invoking onData for each chunk.
	// Implementations must not call onData synchronously from Start.
	Start(interval time.Duration, onData func(chunk []byte)) error

	// Stop finalizes the recording, flushing pending data before returning.
	Stop() error
}
