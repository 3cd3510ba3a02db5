package domain

import (
	"strings"
	"testing"
)

func TestNewSessionIDFormat(t *testing.T) {
	id := NewSessionID()
	if !strings.HasPrefix(string(id), "SES-") {
		t.Fatalf("expected SES- prefix, got %s", id)
	}
	suffix := strings.TrimPrefix(string(id), "SES-")
	if len(suffix) != 16 {
		t.Fatalf("expected 16 character suffix, got %d (%s)", len(suffix), suffix)
	}
	if suffix != strings.ToUpper(suffix) {
		t.Fatalf("expected uppercase suffix, got %s", suffix)
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	seen := make(map[SessionID]struct{})
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate session ID generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewProofIDFormat(t *testing.T) {
	id := NewProofID()
	if !strings.HasPrefix(string(id), "PROOF-") {
		t.Fatalf("expected PROOF- prefix, got %s", id)
	}
}

func TestParseChallengeID(t *testing.T) {
	if _, err := ParseChallengeID(""); err == nil {
		t.Fatalf("expected error for empty challenge ID")
	}
	if _, err := ParseChallengeID("   "); err == nil {
		t.Fatalf("expected error for blank challenge ID")
	}
	id, err := ParseChallengeID("CHL-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.IsNil() {
		t.Fatalf("expected non-nil challenge ID")
	}
}
