package liveness

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"veritas/internal/capture"
	"veritas/internal/challenge"
	"veritas/internal/liveness/mocks"
	"veritas/internal/policy"
	"veritas/internal/verify"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctrl           *gomock.Controller
	mockChallenges *mocks.MockChallengeStarter
	mockVerifier   *mocks.MockVerifier
	mockCapturer   *mocks.MockCapturer
	service        *Service
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockChallenges = mocks.NewMockChallengeStarter(s.ctrl)
	s.mockVerifier = mocks.NewMockVerifier(s.ctrl)
	s.mockCapturer = mocks.NewMockCapturer(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(
		s.mockChallenges,
		s.mockVerifier,
		s.mockCapturer,
		WithLogger(logger),
		WithLocale("it-IT"),
		WithCountdownInterval(2*time.Millisecond),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) newSession(id string, deadline int) *challenge.Session {
	return &challenge.Session{
		ID:              domain.ChallengeID(id),
		Text:            "conta da uno a cinque",
		DeadlineSeconds: deadline,
		CreatedAt:       time.Now(),
	}
}

func (s *ServiceSuite) startChallenge(sess *challenge.Session) {
	s.mockChallenges.EXPECT().Start(gomock.Any(), gomock.Any()).Return(sess, nil)
	s.mockCapturer.EXPECT().Reset()
	got, err := s.service.StartChallenge(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(sess, got)
}

func (s *ServiceSuite) TestDefaultPolicyIsStrictStandard() {
	req := s.service.Requirements()
	s.Equal(policy.StrictStandard, req.Policy)
	s.Equal(policy.ModeSpoken, req.Mode)
	s.True(req.RequiresVoice())
}

func (s *ServiceSuite) TestStartChallengeSendsSessionAndMode() {
	sess := s.newSession("CHL-1", 30)
	s.mockChallenges.EXPECT().Start(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req challenge.StartRequest) (*challenge.Session, error) {
			s.Equal(s.service.SessionID(), req.SessionID)
			s.Equal(policy.ModeSpoken, req.Mode)
			s.Equal("it-IT", req.Locale)
			return sess, nil
		})
	s.mockCapturer.EXPECT().Reset()

	_, err := s.service.StartChallenge(context.Background())
	s.Require().NoError(err)
	s.Equal(sess, s.service.CurrentChallenge())
}

func (s *ServiceSuite) TestStartChallengeReplacesSession() {
	first := s.newSession("CHL-1", 30)
	second := s.newSession("CHL-2", 30)
	s.startChallenge(first)
	s.startChallenge(second)
	s.Equal(second, s.service.CurrentChallenge())
}

func (s *ServiceSuite) TestStartChallengeFailureKeepsSession() {
	sess := s.newSession("CHL-1", 30)
	s.startChallenge(sess)

	s.mockChallenges.EXPECT().Start(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeStartFailed, "challenge start failed"))

	_, err := s.service.StartChallenge(context.Background())
	s.Require().True(dErrors.HasCode(err, dErrors.CodeStartFailed))
	s.Equal(sess, s.service.CurrentChallenge(), "failed start must not touch the current session")
}

func (s *ServiceSuite) TestStartCaptureRequiresChallenge() {
	err := s.service.StartCapture(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeMissingChallenge))
}

func (s *ServiceSuite) TestStartCapturePassesMode() {
	s.startChallenge(s.newSession("CHL-1", 30))
	s.mockCapturer.EXPECT().Start(gomock.Any(), policy.ModeSpoken).Return(nil)
	s.Require().NoError(s.service.StartCapture(context.Background()))
}

func (s *ServiceSuite) TestStopCaptureRetainsClip() {
	clip := &capture.Result{Blob: []byte("clip"), MimeType: "video/webm"}
	s.mockCapturer.EXPECT().Stop().Return(clip, nil)

	got, err := s.service.StopCapture()
	s.Require().NoError(err)
	s.Equal(clip, got)
	s.Equal(clip, s.service.LastCapture())
}

func (s *ServiceSuite) TestStopCaptureErrorKeepsNoClip() {
	s.mockCapturer.EXPECT().Stop().Return(nil, dErrors.New(dErrors.CodeInternal, "finalize recording"))

	_, err := s.service.StopCapture()
	s.Require().Error(err)
	s.Nil(s.service.LastCapture())
}

func (s *ServiceSuite) TestChallengeRestartDiscardsCapture() {
	clip := &capture.Result{Blob: []byte("clip"), MimeType: "video/webm"}
	s.startChallenge(s.newSession("CHL-1", 30))
	s.mockCapturer.EXPECT().Stop().Return(clip, nil)
	_, err := s.service.StopCapture()
	s.Require().NoError(err)

	s.startChallenge(s.newSession("CHL-2", 30))
	s.Nil(s.service.LastCapture(), "restart must discard the prior session's clip")

	s.mockVerifier.EXPECT().Verify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sub verify.Submission) (*verify.Result, error) {
			s.Nil(sub.Capture, "stale clip must not reach the verifier")
			return nil, dErrors.New(dErrors.CodeNoRecording, "no recording available")
		})
	_, err = s.service.Verify(context.Background(), "face-1", "voice-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNoRecording))
}

func (s *ServiceSuite) TestSetPolicyResetsCapture() {
	clip := &capture.Result{Blob: []byte("clip"), MimeType: "video/webm"}
	s.mockCapturer.EXPECT().Stop().Return(clip, nil)
	_, err := s.service.StopCapture()
	s.Require().NoError(err)

	s.mockCapturer.EXPECT().Reset()
	req, err := s.service.SetPolicy(policy.StrictSilent)
	s.Require().NoError(err)
	s.Equal(policy.ModeSilent, req.Mode)
	s.False(req.RequiresVoice())
	s.Nil(s.service.LastCapture(), "policy switch must invalidate the clip")
}

func (s *ServiceSuite) TestSetPolicyUnknown() {
	_, err := s.service.SetPolicy(policy.Policy("LENIENT"))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidPolicy))
	s.Equal(policy.StrictStandard, s.service.Requirements().Policy)
}

func (s *ServiceSuite) TestVerifyPassesCurrentState() {
	sess := s.newSession("CHL-1", 30)
	clip := &capture.Result{Blob: []byte("clip"), MimeType: "video/webm"}
	s.startChallenge(sess)
	s.mockCapturer.EXPECT().Stop().Return(clip, nil)
	_, err := s.service.StopCapture()
	s.Require().NoError(err)

	accepted := &verify.Result{Decision: "ACCEPT", ProofFile: "proofs/PROOF-1.json"}
	s.mockVerifier.EXPECT().Verify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sub verify.Submission) (*verify.Result, error) {
			s.Equal(policy.StrictStandard, sub.Policy.Policy)
			s.Equal(sess, sub.Challenge)
			s.Equal(clip, sub.Capture)
			s.Equal("face-1", sub.EnrollmentFace)
			s.Equal("voice-1", sub.EnrollmentVoice)
			return accepted, nil
		})

	result, err := s.service.Verify(context.Background(), "face-1", "voice-1")
	s.Require().NoError(err)
	s.Equal(accepted, result)
}

func (s *ServiceSuite) TestResetClearsFlowState() {
	clip := &capture.Result{Blob: []byte("clip"), MimeType: "video/webm"}
	s.startChallenge(s.newSession("CHL-1", 30))
	s.mockCapturer.EXPECT().Stop().Return(clip, nil)
	_, err := s.service.StopCapture()
	s.Require().NoError(err)

	id := s.service.SessionID()
	s.mockCapturer.EXPECT().Reset()
	s.service.Reset()

	s.Nil(s.service.CurrentChallenge())
	s.Nil(s.service.LastCapture())
	s.Equal(id, s.service.SessionID(), "reset keeps the session identifier")
}

func TestCountdownObserverSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	challenges := mocks.NewMockChallengeStarter(ctrl)
	verifier := mocks.NewMockVerifier(ctrl)
	capturer := mocks.NewMockCapturer(ctrl)

	var ticks []int
	finished := make(chan struct{})
	svc := New(challenges, verifier, capturer,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCountdownInterval(2*time.Millisecond),
		WithCountdownObserver(func(remaining int) {
			ticks = append(ticks, remaining)
			if remaining == 0 {
				close(finished)
			}
		}),
	)

	sess := &challenge.Session{ID: "CHL-1", Text: "t", DeadlineSeconds: 3, CreatedAt: time.Now()}
	challenges.EXPECT().Start(gomock.Any(), gomock.Any()).Return(sess, nil)
	capturer.EXPECT().Reset()
	if _, err := svc.StartChallenge(context.Background()); err != nil {
		t.Fatalf("start challenge: %v", err)
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("countdown did not reach 0")
	}
	capturer.EXPECT().Reset()
	svc.Reset() // waits for the countdown task, makes the slice read safe
	want := []int{3, 2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("expected ticks %v, got %v", want, ticks)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("expected ticks %v, got %v", want, ticks)
		}
	}
}
