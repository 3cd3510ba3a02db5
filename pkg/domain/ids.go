// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "veritas/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a ChallengeID where a
// SessionID is expected. All three are opaque prefixed strings issued either
// locally (SessionID) or by the remote services (ChallengeID, ProofID).
type (
	SessionID   string
	ChallengeID string
	ProofID     string
)

const (
	sessionPrefix = "SES-"
	proofPrefix   = "PROOF-"
)

// NewSessionID mints a local session identifier in the wire format the
// services expect: "SES-" followed by 16 uppercase hex characters.
func NewSessionID() SessionID {
	return SessionID(sessionPrefix + randomSuffix())
}

// NewProofID mints a proof identifier ("PROOF-" + 16 uppercase hex).
func NewProofID() ProofID {
	return ProofID(proofPrefix + randomSuffix())
}

func randomSuffix() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:16])
}

// Parse functions - use at trust boundaries (service responses, API inputs).

func ParseSessionID(s string) (SessionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "session ID cannot be empty")
	}
	return SessionID(s), nil
}

func ParseChallengeID(s string) (ChallengeID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "challenge ID cannot be empty")
	}
	return ChallengeID(s), nil
}

// String methods - for logging and debugging.

func (id SessionID) String() string   { return string(id) }
func (id ChallengeID) String() string { return string(id) }
func (id ProofID) String() string     { return string(id) }

// IsNil checks - used for service-layer validation.

func (id SessionID) IsNil() bool   { return id == "" }
func (id ChallengeID) IsNil() bool { return id == "" }
func (id ProofID) IsNil() bool     { return id == "" }
