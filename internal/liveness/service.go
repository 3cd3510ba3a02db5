// Package liveness is the client-side orchestration state machine of the
// verification flow: challenge lifecycle plus countdown, capture lifecycle,
// and verification submission. The presentation layer only observes state
// and invokes the public operations.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"veritas/internal/capture"
	"veritas/internal/challenge"
	livenessmetrics "veritas/internal/liveness/metrics"
	"veritas/internal/policy"
	"veritas/internal/verify"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ChallengeStarter,Verifier,Capturer

// ChallengeStarter requests challenges from the challenge service.
type ChallengeStarter interface {
	Start(ctx context.Context, req challenge.StartRequest) (*challenge.Session, error)
}

// Verifier submits the assembled verification request.
type Verifier interface {
	Verify(ctx context.Context, sub verify.Submission) (*verify.Result, error)
}

// Capturer drives the device capture lifecycle.
type Capturer interface {
	Start(ctx context.Context, mode policy.Mode) error
	Stop() (*capture.Result, error)
	Reset()
	State() capture.State
}

// Service owns all mutable flow state: the current challenge session, the
// countdown handle, and the last capture result. At most one challenge
// session is current at any time; starting a new one replaces it atomically.
type Service struct {
	challenges ChallengeStarter
	verifier   Verifier
	capturer   Capturer
	countdown  *challenge.Runner
	logger     *slog.Logger
	metrics    *livenessmetrics.Metrics
	tracing    tracing
	locale     string
	onTick     func(remaining int)

	mu           sync.Mutex
	sessionID    domain.SessionID
	requirements policy.Requirements
	current      *challenge.Session
	clip         *capture.Result
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics collector for the service.
func WithMetrics(m *livenessmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocale sets the locale sent on challenge start requests.
func WithLocale(locale string) Option {
	return func(s *Service) {
		if locale != "" {
			s.locale = locale
		}
	}
}

// WithCountdownObserver sets the callback receiving remaining seconds after
// each countdown tick. The countdown is advisory: reaching 0 blocks nothing.
func WithCountdownObserver(onTick func(remaining int)) Option {
	return func(s *Service) {
		s.onTick = onTick
	}
}

// WithCountdownInterval overrides the one-second countdown tick, for tests.
func WithCountdownInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.countdown = challenge.NewRunner(challenge.WithTickInterval(d))
		}
	}
}

// New creates the orchestrator with required collaborators.
// Panics if a collaborator is nil - fail fast at startup.
func New(challenges ChallengeStarter, verifier Verifier, capturer Capturer, opts ...Option) *Service {
	if challenges == nil {
		panic("liveness.New: challenge starter is required")
	}
	if verifier == nil {
		panic("liveness.New: verifier is required")
	}
	if capturer == nil {
		panic("liveness.New: capturer is required")
	}

	requirements, _ := policy.Resolve(policy.StrictStandard)
	s := &Service{
		challenges:   challenges,
		verifier:     verifier,
		capturer:     capturer,
		countdown:    challenge.NewRunner(),
		logger:       slog.Default(),
		tracing:      newTracing(),
		locale:       "it-IT",
		sessionID:    domain.NewSessionID(),
		requirements: requirements,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionID returns the local session identifier sent to the services.
func (s *Service) SessionID() domain.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Requirements returns the active policy's resolved requirements.
func (s *Service) Requirements() policy.Requirements {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requirements
}

// CurrentChallenge returns the current challenge session, or nil.
func (s *Service) CurrentChallenge() *challenge.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LastCapture returns the clip of the last completed recording cycle, or nil.
func (s *Service) LastCapture() *capture.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// SetPolicy switches the active verification policy. Any in-progress or
// completed capture is invalidated: it must restart under the new mode's
// audio requirement.
func (s *Service) SetPolicy(p policy.Policy) (policy.Requirements, error) {
	requirements, err := policy.Resolve(p)
	if err != nil {
		return policy.Requirements{}, err
	}

	s.mu.Lock()
	s.requirements = requirements
	s.clip = nil
	s.mu.Unlock()
	s.capturer.Reset()

	s.logger.Info("policy_changed",
		"policy_id", requirements.Policy,
		"mode", requirements.Mode,
	)
	return requirements, nil
}

// StartChallenge requests a new challenge and replaces the current session
// atomically: the prior countdown is stopped before the new one starts, and
// any capture result from the prior session is discarded. On failure no
// session state changes.
func (s *Service) StartChallenge(ctx context.Context) (*challenge.Session, error) {
	s.mu.Lock()
	req := challenge.StartRequest{
		SessionID: s.sessionID,
		Mode:      s.requirements.Mode,
		Locale:    s.locale,
	}
	s.mu.Unlock()

	ctx, span := s.tracing.start(ctx, "liveness.start_challenge",
		attribute.String("mode", string(req.Mode)))
	sess, err := s.challenges.Start(ctx, req)
	span.end(err)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementChallengeStartFailures()
		}
		return nil, err
	}

	s.mu.Lock()
	s.current = sess
	s.clip = nil
	s.mu.Unlock()

	// A verification must never be built from a capture that predates the
	// current challenge, so the capture side resets along with the session.
	s.capturer.Reset()
	s.countdown.Start(sess.DeadlineSeconds, s.onTick)

	if s.metrics != nil {
		s.metrics.IncrementChallengesStarted()
	}
	return sess, nil
}

// StartCapture begins a recording cycle for the current challenge. The
// deadline is advisory: it is not enforced against the clock here.
func (s *Service) StartCapture(ctx context.Context) error {
	s.mu.Lock()
	current := s.current
	mode := s.requirements.Mode
	s.mu.Unlock()

	if current == nil {
		return dErrors.New(dErrors.CodeMissingChallenge, "start a challenge before capturing")
	}
	ctx, span := s.tracing.start(ctx, "liveness.start_capture",
		attribute.String("mode", string(mode)))
	err := s.capturer.Start(ctx, mode)
	span.end(err)
	return err
}

// StopCapture finalizes the recording cycle and retains its result for
// verification.
func (s *Service) StopCapture() (*capture.Result, error) {
	result, err := s.capturer.Stop()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.clip = result
	s.mu.Unlock()
	return result, nil
}

// Verify builds a submission from the current policy, challenge, and capture
// result, and returns the normalized decision. Validation failures are
// raised before any network call; service-reported failures come back as a
// normal ERROR-decision result.
func (s *Service) Verify(ctx context.Context, enrollmentFace, enrollmentVoice string) (*verify.Result, error) {
	s.mu.Lock()
	sub := verify.Submission{
		Policy:          s.requirements,
		Challenge:       s.current,
		Capture:         s.clip,
		EnrollmentFace:  enrollmentFace,
		EnrollmentVoice: enrollmentVoice,
	}
	s.mu.Unlock()

	start := time.Now()
	ctx, span := s.tracing.start(ctx, "liveness.verify",
		attribute.String("policy_id", string(sub.Policy.Policy)))
	result, err := s.verifier.Verify(ctx, sub)
	span.end(err)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveVerify(start)
		s.metrics.IncrementDecision(result.Decision)
	}
	s.logger.Info("verify_decision",
		"decision", result.Decision,
		"proof_file", result.ProofFile,
	)
	return result, nil
}

// Reset stops the countdown, releases any capture resources, and clears the
// current session. The session identifier is kept.
func (s *Service) Reset() {
	s.countdown.Stop()
	s.capturer.Reset()

	s.mu.Lock()
	s.current = nil
	s.clip = nil
	s.mu.Unlock()
}
