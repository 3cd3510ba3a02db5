// Package policy resolves verification policies into an operating mode and
// the enrollment identifiers that mode requires.
package policy

import (
	dErrors "veritas/pkg/domain-errors"
)

// Mode states whether the liveness response requires a spoken utterance.
type Mode string

const (
	ModeSilent Mode = "SILENT"
	ModeSpoken Mode = "SPOKEN"
)

// Policy is one of a closed set of verification policy identifiers.
type Policy string

const (
	StrictStandard Policy = "STRICT_STANDARD"
	StrictSilent   Policy = "STRICT_SILENT"
)

// EnrollmentField names a biometric template the active policy requires.
type EnrollmentField string

const (
	EnrollmentFace  EnrollmentField = "face"
	EnrollmentVoice EnrollmentField = "voice"
)

// Requirements is what a resolved policy demands of the rest of the flow.
type Requirements struct {
	Policy             Policy
	Mode               Mode
	RequiredEnrollment []EnrollmentField
}

// RequiresVoice reports whether the policy needs a voice enrollment identifier.
func (r Requirements) RequiresVoice() bool {
	return r.Mode == ModeSpoken
}

// Resolve maps a policy identifier to its operating mode and required
// enrollment set. Pure function of the identifier.
func Resolve(p Policy) (Requirements, error) {
	switch p {
	case StrictStandard:
		return Requirements{
			Policy:             p,
			Mode:               ModeSpoken,
			RequiredEnrollment: []EnrollmentField{EnrollmentFace, EnrollmentVoice},
		}, nil
	case StrictSilent:
		return Requirements{
			Policy:             p,
			Mode:               ModeSilent,
			RequiredEnrollment: []EnrollmentField{EnrollmentFace},
		}, nil
	default:
		return Requirements{}, dErrors.New(dErrors.CodeInvalidPolicy, "policy_id not supported")
	}
}
