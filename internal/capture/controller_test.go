package capture

import (
	"bytes"
	"context"
	"testing"

	"veritas/internal/policy"
	dErrors "veritas/pkg/domain-errors"
)

func TestRecordingCycleSilent(t *testing.T) {
	dev := NewMemoryDevice(codecPreferences...)
	c := NewController(dev)

	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if c.State() != StateRecording {
		t.Fatalf("expected RECORDING, got %s", c.State())
	}

	stream := dev.LastStream()
	if !stream.Constraints().Video {
		t.Fatalf("expected video track to be requested")
	}
	if stream.Constraints().Audio {
		t.Fatalf("audio must not be requested for SILENT mode")
	}

	rec := stream.Recorder()
	rec.Push([]byte("chunk-1"))
	rec.Push(nil) // empty deliveries are dropped
	rec.Push([]byte("chunk-2"))

	result, err := c.Stop()
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %s", c.State())
	}
	if !bytes.Equal(result.Blob, []byte("chunk-1chunk-2")) {
		t.Fatalf("expected chunks concatenated in order, got %q", result.Blob)
	}
	if result.MimeType != "video/webm;codecs=vp9,opus" {
		t.Fatalf("expected first codec preference, got %s", result.MimeType)
	}
	if stream.CloseCalls() != 1 {
		t.Fatalf("expected stream released exactly once, got %d", stream.CloseCalls())
	}
}

func TestSpokenModeRequestsAudio(t *testing.T) {
	dev := NewMemoryDevice(codecPreferences...)
	c := NewController(dev)

	if err := c.Start(context.Background(), policy.ModeSpoken); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if !dev.LastStream().Constraints().Audio {
		t.Fatalf("expected audio track to be requested for SPOKEN mode")
	}
	c.Reset()
}

func TestCodecNegotiationPicksFirstSupported(t *testing.T) {
	dev := NewMemoryDevice("video/webm", "video/mp4")
	c := NewController(dev)

	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if c.MimeType() != "video/webm" {
		t.Fatalf("expected video/webm, got %q", c.MimeType())
	}
	if got := dev.LastStream().Recorder().MimeType(); got != "video/webm" {
		t.Fatalf("expected recorder created with negotiated codec, got %q", got)
	}
	c.Reset()
}

func TestNoSupportedCodecDefaultsResultMime(t *testing.T) {
	dev := NewMemoryDevice() // nothing supported
	c := NewController(dev)

	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if c.MimeType() != "" {
		t.Fatalf("expected no forced codec, got %q", c.MimeType())
	}
	if got := dev.LastStream().Recorder().MimeType(); got != "" {
		t.Fatalf("expected platform-default recorder, got %q", got)
	}

	dev.LastStream().Recorder().Push([]byte("data"))
	result, err := c.Stop()
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if result.MimeType != "video/webm" {
		t.Fatalf("expected generic container default, got %s", result.MimeType)
	}
}

func TestDeviceAccessDenied(t *testing.T) {
	dev := NewMemoryDevice(codecPreferences...)
	dev.SetDeny(true)
	c := NewController(dev)

	err := c.Start(context.Background(), policy.ModeSilent)
	if !dErrors.HasCode(err, dErrors.CodeDeviceDenied) {
		t.Fatalf("expected device_access_denied, got %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected state to return to IDLE, got %s", c.State())
	}
}

func TestStartWhileRecordingFails(t *testing.T) {
	dev := NewMemoryDevice(codecPreferences...)
	c := NewController(dev)

	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := c.Start(context.Background(), policy.ModeSilent); !dErrors.HasCode(err, dErrors.CodeInvalidState) {
		t.Fatalf("expected invalid_state, got %v", err)
	}
	c.Reset()
}

func TestRestartDiscardsPriorResult(t *testing.T) {
	dev := NewMemoryDevice(codecPreferences...)
	c := NewController(dev)

	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	dev.LastStream().Recorder().Push([]byte("old"))
	if _, err := c.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// Start from STOPPED is legal and discards the previous result.
	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected restart error: %v", err)
	}
	if c.Result() != nil {
		t.Fatalf("expected prior result to be discarded on restart")
	}
	dev.LastStream().Recorder().Push([]byte("new"))
	result, err := c.Stop()
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if !bytes.Equal(result.Blob, []byte("new")) {
		t.Fatalf("expected only new-cycle chunks, got %q", result.Blob)
	}
}

func TestStopIsNoOpWhenNotRecording(t *testing.T) {
	dev := NewMemoryDevice(codecPreferences...)
	c := NewController(dev)

	if result, err := c.Stop(); result != nil || err != nil {
		t.Fatalf("expected no-op stop from IDLE, got %v, %v", result, err)
	}

	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	dev.LastStream().Recorder().Push([]byte("data"))
	first, err := c.Stop()
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	second, err := c.Stop()
	if err != nil {
		t.Fatalf("unexpected second stop error: %v", err)
	}
	if second != first {
		t.Fatalf("expected repeated stop to return the same result")
	}
	if dev.LastStream().CloseCalls() != 1 {
		t.Fatalf("expected single release, got %d", dev.LastStream().CloseCalls())
	}
}

func TestFinalizeErrorStillReleasesTracks(t *testing.T) {
	dev := NewMemoryDevice(codecPreferences...)
	dev.SetFailFinalize(true)
	c := NewController(dev)

	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	dev.LastStream().Recorder().Push([]byte("data"))

	result, err := c.Stop()
	if err == nil {
		t.Fatalf("expected finalize error")
	}
	if result != nil {
		t.Fatalf("expected no result on finalize failure")
	}
	if dev.LastStream().CloseCalls() != 1 {
		t.Fatalf("expected stream released exactly once despite error, got %d", dev.LastStream().CloseCalls())
	}
	if c.State() != StateIdle {
		t.Fatalf("expected controller reset to IDLE, got %s", c.State())
	}
}

func TestResetReleasesDuringRecording(t *testing.T) {
	dev := NewMemoryDevice(codecPreferences...)
	c := NewController(dev)

	if err := c.Start(context.Background(), policy.ModeSilent); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	stream := dev.LastStream()

	c.Reset()
	if stream.CloseCalls() != 1 {
		t.Fatalf("expected release on reset, got %d close calls", stream.CloseCalls())
	}
	if c.State() != StateIdle {
		t.Fatalf("expected IDLE after reset, got %s", c.State())
	}

	// Idempotent: resetting with nothing held changes nothing.
	c.Reset()
	if stream.CloseCalls() != 1 {
		t.Fatalf("expected no second release, got %d close calls", stream.CloseCalls())
	}
}
