package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	platformstrings "veritas/pkg/platform/strings"
)

const (
	defaultPort       = "5015"
	defaultLatencyMs  = "150"
	defaultProofsDir  = "proofs"
	defaultMaxVideoMB = "50"
	defaultMaxAudioMB = "15"

	maxFlags = 20
)

type ErrorResponse struct {
	OK           bool     `json:"ok"`
	ErrorCode    string   `json:"error_code"`
	ErrorMessage string   `json:"error_message"`
	FlagsSummary []string `json:"flags_summary"`
}

type Breakdown struct {
	VoiceScore     *float64 `json:"voice_score"`
	FaceScore      *float64 `json:"face_score"`
	LipsyncScore   *float64 `json:"lipsync_score"`
	ChallengeScore *float64 `json:"challenge_score"`
	VSRScore       *float64 `json:"vsr_score"`
}

type VerifyResponse struct {
	OK            bool           `json:"ok"`
	FinalDecision string         `json:"final_decision"`
	ProofID       string         `json:"proof_id"`
	ProofFile     string         `json:"proof_file"`
	Breakdown     Breakdown      `json:"breakdown"`
	FlagsSummary  []string       `json:"flags_summary"`
	TimingsMs     map[string]int `json:"timings_ms"`
}

type Proof struct {
	ProofVersion string         `json:"proof_version"`
	ProofID      string         `json:"proof_id"`
	TimeUTC      string         `json:"time_utc"`
	PolicyID     string         `json:"policy_id"`
	Mode         string         `json:"mode"`
	Inputs       map[string]any `json:"inputs"`
	Results      map[string]any `json:"results"`
	EvidenceRefs map[string]any `json:"evidence_refs"`
}

var (
	latencyMs  = getEnvInt("LATENCY_MS", defaultLatencyMs)
	proofsDir  = getEnv("PROOFS_DIR", defaultProofsDir)
	maxVideoMB = getEnvInt("MAX_VIDEO_MB", defaultMaxVideoMB)
	maxAudioMB = getEnvInt("MAX_AUDIO_MB", defaultMaxAudioMB)
)

// rejectedEnrollments always score below the reject threshold. Used to test
// REJECT handling without a real biometric backend.
var rejectedEnrollments = map[string]bool{
	"face-imposter":  true,
	"voice-imposter": true,
}

// inconclusiveEnrollments land between thresholds.
var inconclusiveEnrollments = map[string]bool{
	"face-blurry": true,
	"voice-noisy": true,
}

func main() {
	port := getEnv("PORT", defaultPort)
	if err := os.MkdirAll(proofsDir, 0o755); err != nil {
		log.Fatal(err)
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Post("/api/multimodal/verify", handleVerify)

	log.Printf("🔬 Mock Verification Service starting on port %s", port)
	log.Printf("📁 Proofs dir: %s", proofsDir)
	log.Printf("⏱️  Simulated latency: %dms", latencyMs)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"service": "verify-service",
		"version": "1.0.0",
		"limits":  map[string]int{"max_video_mb": maxVideoMB, "max_audio_mb": maxAudioMB},
	})
}

func handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	log.Printf("📥 Incoming request: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

	if err := r.ParseMultipartForm(int64(maxVideoMB+maxAudioMB) << 20); err != nil {
		sendError(w, http.StatusBadRequest, "BAD_MULTIPART", "invalid multipart body: "+err.Error(), nil)
		return
	}

	policyID := r.FormValue("policy_id")
	enrollmentFace := r.FormValue("enrollment_id_face")
	enrollmentVoice := r.FormValue("enrollment_id_voice")
	challengeID := r.FormValue("challenge_id")

	var mode string
	switch policyID {
	case "STRICT_STANDARD":
		mode = "SPOKEN"
	case "STRICT_SILENT":
		mode = "SILENT"
	default:
		sendError(w, http.StatusBadRequest, "INVALID_POLICY", "policy_id not supported", nil)
		return
	}
	if enrollmentFace == "" {
		sendError(w, http.StatusBadRequest, "MISSING_FIELD", "enrollment_id_face required", nil)
		return
	}
	if challengeID == "" {
		sendError(w, http.StatusBadRequest, "MISSING_FIELD", "challenge_id required", nil)
		return
	}
	if policyID == "STRICT_STANDARD" && enrollmentVoice == "" {
		sendError(w, http.StatusBadRequest, "MISSING_FIELD", "enrollment_id_voice required for STRICT_STANDARD", nil)
		return
	}

	flags := []string{}

	video, _, err := r.FormFile("clip_video")
	if err != nil {
		sendError(w, http.StatusBadRequest, "MISSING_FIELD", "clip_video required", nil)
		return
	}
	videoBytes, err := io.ReadAll(video)
	video.Close()
	if err != nil {
		sendError(w, http.StatusBadRequest, "BAD_MULTIPART", "read clip_video: "+err.Error(), nil)
		return
	}
	if len(videoBytes) > maxVideoMB<<20 {
		sendError(w, http.StatusRequestEntityTooLarge, "VIDEO_TOO_LARGE", "clip_video exceeds limit", nil)
		return
	}

	var audioBytes []byte
	audio, _, audioErr := r.FormFile("clip_audio")
	switch {
	case policyID == "STRICT_STANDARD" && audioErr != nil:
		sendError(w, http.StatusBadRequest, "MISSING_FIELD", "clip_audio required for STRICT_STANDARD", nil)
		return
	case policyID == "STRICT_SILENT" && audioErr == nil:
		flags = append(flags, "AUDIO_IGNORED_SILENT")
		audio.Close()
	case audioErr == nil:
		audioBytes, err = io.ReadAll(audio)
		audio.Close()
		if err != nil {
			sendError(w, http.StatusBadRequest, "BAD_MULTIPART", "read clip_audio: "+err.Error(), nil)
			return
		}
		if len(audioBytes) > maxAudioMB<<20 {
			sendError(w, http.StatusRequestEntityTooLarge, "AUDIO_TOO_LARGE", "clip_audio exceeds limit", nil)
			return
		}
	}

	shaVideo := sha256Hex(videoBytes)
	shaAudio := ""
	if audioBytes != nil {
		shaAudio = sha256Hex(audioBytes)
	}

	// Deterministic scoring: magic enrollment IDs pin the outcome, everything
	// else derives from the evidence hash so repeat submissions agree.
	faceScore := scoreFor(enrollmentFace, shaVideo)
	challengeScore := ptr(0.90)
	breakdown := Breakdown{
		FaceScore:      faceScore,
		ChallengeScore: challengeScore,
	}
	if mode == "SPOKEN" {
		breakdown.VoiceScore = scoreFor(enrollmentVoice, shaAudio)
		breakdown.LipsyncScore = ptr(0.88)
	} else {
		breakdown.VSRScore = ptr(0.87)
	}

	decision := fuse(mode, breakdown)
	if decision == "REJECT" {
		flags = append(flags, "BIOMETRIC_MISMATCH")
	}
	if decision == "INCONCLUSIVE" {
		flags = append(flags, "LOW_CONFIDENCE")
	}
	flags = platformstrings.Cap(platformstrings.DedupeAndTrim(flags), maxFlags)

	proofID := "PROOF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
	proofPath := filepath.Join(proofsDir, proofID+".json")
	proof := Proof{
		ProofVersion: "proof_multimodal_v1",
		ProofID:      proofID,
		TimeUTC:      time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		PolicyID:     policyID,
		Mode:         mode,
		Inputs: map[string]any{
			"enrollment_id_face":  enrollmentFace,
			"enrollment_id_voice": enrollmentVoice,
			"challenge_id":        challengeID,
		},
		Results: map[string]any{
			"final_decision": decision,
			"breakdown":      breakdown,
			"flags_summary":  flags,
		},
		EvidenceRefs: map[string]any{
			"video": map[string]any{"sha256": shaVideo, "size_bytes": len(videoBytes)},
			"audio": audioEvidence(shaAudio, len(audioBytes)),
		},
	}
	if err := writeProof(proofPath, proof); err != nil {
		log.Printf("⚠️  Proof write failed: %v", err)
		sendError(w, http.StatusInternalServerError, "PROOF_WRITE_FAILED", "could not persist proof", flags)
		return
	}

	resp := VerifyResponse{
		OK:            true,
		FinalDecision: decision,
		ProofID:       proofID,
		ProofFile:     proofPath,
		Breakdown:     breakdown,
		FlagsSummary:  flags,
		TimingsMs:     map[string]int{"total": int(time.Since(start).Milliseconds())},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
	log.Printf("✅ Verification %s: %s -> %s", proofID, enrollmentFace, decision)
}

// scoreFor derives a stable match score from the enrollment ID and evidence
// hash, with magic IDs overriding the outcome.
func scoreFor(enrollmentID, evidenceSHA string) *float64 {
	if enrollmentID == "" {
		return nil
	}
	if rejectedEnrollments[enrollmentID] {
		return ptr(0.31)
	}
	if inconclusiveEnrollments[enrollmentID] {
		return ptr(0.70)
	}
	h := sha256Hex([]byte(enrollmentID + evidenceSHA))
	n, _ := strconv.ParseUint(h[:4], 16, 32)
	// 0.86..0.99: always above the accept threshold
	return ptr(0.86 + float64(n%14)/100)
}

// fuse mirrors the fixed-threshold fusion rule: every available score must
// clear the accept threshold for ACCEPT; any score below the reject threshold
// forces REJECT; otherwise INCONCLUSIVE.
func fuse(mode string, b Breakdown) string {
	scores := []*float64{b.FaceScore, b.ChallengeScore}
	if mode == "SPOKEN" {
		scores = append(scores, b.VoiceScore, b.LipsyncScore)
	} else {
		scores = append(scores, b.VSRScore)
	}

	const accept, reject = 0.85, 0.55
	decision := "ACCEPT"
	for _, s := range scores {
		if s == nil {
			continue
		}
		if *s < reject {
			return "REJECT"
		}
		if *s < accept {
			decision = "INCONCLUSIVE"
		}
	}
	return decision
}

func audioEvidence(sha string, size int) map[string]any {
	if sha == "" {
		return nil
	}
	return map[string]any{"sha256": sha, "size_bytes": size}
}

func writeProof(path string, proof Proof) error {
	data, err := json.MarshalIndent(proof, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func ptr(f float64) *float64 {
	return &f
}

func sendError(w http.ResponseWriter, status int, code, message string, flags []string) {
	if flags == nil {
		flags = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		OK:           false,
		ErrorCode:    code,
		ErrorMessage: message,
		FlagsSummary: flags,
	})
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key, fallback string) int {
	value := getEnv(key, fallback)
	n, err := strconv.Atoi(value)
	if err != nil {
		n, _ = strconv.Atoi(fallback)
	}
	return n
}
