// Package verify assembles and submits the multimodal verification request
// and normalizes the service's decision.
package verify

import (
	"veritas/internal/capture"
	"veritas/internal/challenge"
	"veritas/internal/policy"
)

// DecisionError is the normalized decision for verification-service-reported
// failures. It is a regular outcome, not an error of the verify operation.
const DecisionError = "ERROR"

// Submission is the derived verification request. It is built fresh per call
// from the current policy, challenge session, and capture result.
type Submission struct {
	Policy          policy.Requirements
	Challenge       *challenge.Session
	Capture         *capture.Result
	EnrollmentFace  string
	EnrollmentVoice string
}

// Result is the normalized verification outcome.
type Result struct {
	Decision  string
	ProofFile string

	// Breakdown holds per-signal scoring detail; empty map when the service
	// omitted it.
	Breakdown map[string]any

	// Flags holds anomaly/warning indicators; empty slice when omitted.
	Flags []any

	// Diagnostics carries the service's raw error payload when Decision is
	// DecisionError.
	Diagnostics map[string]any
}

// verifyResponse is the service's success wire shape.
type verifyResponse struct {
	FinalDecision string         `json:"final_decision"`
	ProofFile     string         `json:"proof_file"`
	Breakdown     map[string]any `json:"breakdown"`
	FlagsSummary  []any          `json:"flags_summary"`
}
