package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"veritas/internal/capture"
	"veritas/internal/challenge"
	"veritas/internal/liveness"
	livenessmetrics "veritas/internal/liveness/metrics"
	"veritas/internal/platform/config"
	"veritas/internal/platform/logger"
	"veritas/internal/policy"
	"veritas/internal/verify"
)

// main drives one full liveness flow against a running stack (see lab/stack):
// challenge start, a synthetic capture cycle, and verification. The capture
// layer is the in-memory device; real deployments plug a platform device in.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing liveness client",
		"challenge_base_url", cfg.ChallengeBaseURL,
		"verify_base_url", cfg.VerifyBaseURL,
	)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	device := capture.NewMemoryDevice("video/webm;codecs=vp9,opus", "video/webm")

	svc := liveness.New(
		challenge.New(cfg.ChallengeBaseURL,
			challenge.WithStartPath(cfg.ChallengeStartPath),
			challenge.WithHTTPClient(httpClient),
			challenge.WithLogger(log),
		),
		verify.New(cfg.VerifyBaseURL,
			verify.WithPath(cfg.VerifyPath),
			verify.WithHTTPClient(httpClient),
			verify.WithLogger(log),
		),
		capture.NewController(device, capture.WithLogger(log)),
		liveness.WithLogger(log),
		liveness.WithLocale(cfg.Locale),
		liveness.WithMetrics(livenessmetrics.New()),
		liveness.WithCountdownObserver(func(remaining int) {
			log.Info("countdown_tick", "remaining_seconds", remaining)
		}),
	)

	policyID := policy.Policy(getenv("POLICY_ID", string(policy.StrictStandard)))
	requirements, err := svc.SetPolicy(policyID)
	if err != nil {
		log.Error("invalid policy", "policy_id", policyID, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	sess, err := svc.StartChallenge(ctx)
	if err != nil {
		log.Error("challenge start failed", "error", err)
		os.Exit(1)
	}
	log.Info("challenge", "text", sess.Text, "deadline_seconds", sess.DeadlineSeconds)

	if err := svc.StartCapture(ctx); err != nil {
		log.Error("capture start failed", "error", err)
		os.Exit(1)
	}
	// The memory device delivers nothing on its own; feed a few synthetic
	// chunks as a stand-in for camera frames.
	recorder := device.LastStream().Recorder()
	for i := 0; i < 5; i++ {
		recorder.Push([]byte("synthetic-frame-"))
		time.Sleep(200 * time.Millisecond)
	}
	clip, err := svc.StopCapture()
	if err != nil {
		log.Error("capture stop failed", "error", err)
		os.Exit(1)
	}
	log.Info("capture", "mime_type", clip.MimeType, "size_bytes", len(clip.Blob))

	enrollmentFace := getenv("ENROLLMENT_ID_FACE", "face-demo-01")
	enrollmentVoice := ""
	if requirements.RequiresVoice() {
		enrollmentVoice = getenv("ENROLLMENT_ID_VOICE", "voice-demo-01")
	}

	result, err := svc.Verify(ctx, enrollmentFace, enrollmentVoice)
	if err != nil {
		log.Error("verification failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(map[string]any{
		"final_decision": result.Decision,
		"proof_file":     result.ProofFile,
		"breakdown":      result.Breakdown,
		"flags_summary":  result.Flags,
		"diagnostics":    result.Diagnostics,
	}, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
