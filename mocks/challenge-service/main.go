package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPort      = "5012"
	defaultLatencyMs = "50"
	defaultTTLSec    = "45"
)

type StartRequest struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	Locale    string `json:"locale"`
}

type StartResponse struct {
	ChallengeID   string `json:"challenge_id"`
	ChallengeText string `json:"challenge_text"`
	Mode          string `json:"mode"`
	Locale        string `json:"locale"`
	ExpiresAt     string `json:"expires_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var (
	latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)
	ttlSec    = getEnvInt("CHALLENGE_TTL_S", defaultTTLSec)
)

// spokenPrompts are read-aloud challenges; the picked one must be repeated on
// camera before the deadline.
var spokenPrompts = map[string][]string{
	"it-IT": {
		"Conta ad alta voce da uno a cinque",
		"Leggi ad alta voce: il treno parte alle nove",
		"Di' ad alta voce il giorno della settimana di oggi",
	},
	"en-US": {
		"Count out loud from one to five",
		"Read aloud: the train leaves at nine",
		"Say today's day of the week out loud",
	},
}

var silentPrompts = map[string][]string{
	"it-IT": {
		"Gira lentamente la testa a sinistra, poi a destra",
		"Avvicina il viso alla camera, poi allontanati",
		"Chiudi gli occhi per due secondi, poi riaprili",
	},
	"en-US": {
		"Slowly turn your head left, then right",
		"Move your face closer to the camera, then back",
		"Close your eyes for two seconds, then open them",
	},
}

// failingSessions always get a 503, for exercising the client's start-failure
// path end to end.
var failingSessions = map[string]bool{
	"SES-FAIL":        true,
	"SES-UNAVAILABLE": true,
}

func main() {
	port := getEnv("PORT", defaultPort)

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Post("/api/challenge/start", handleChallengeStart)

	log.Printf("🎲 Mock Challenge Service starting on port %s", port)
	log.Printf("⏱️  Simulated latency: %dms, challenge TTL: %ds", latencyMs, ttlSec)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "challenge-service",
		"version": "1.0.0",
	})
}

func handleChallengeStart(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	log.Printf("📥 Incoming request: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if failingSessions[req.SessionID] {
		sendError(w, "challenge engine overloaded", http.StatusServiceUnavailable)
		return
	}

	mode := strings.ToUpper(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = "SPOKEN"
	}
	if mode != "SPOKEN" && mode != "SILENT" {
		sendError(w, "mode must be SPOKEN or SILENT", http.StatusBadRequest)
		return
	}

	locale := req.Locale
	prompts := spokenPrompts
	if mode == "SILENT" {
		prompts = silentPrompts
	}
	pool, ok := prompts[locale]
	if !ok {
		locale = "en-US"
		pool = prompts[locale]
	}

	resp := StartResponse{
		ChallengeID:   "CHL-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16]),
		ChallengeText: pool[rand.Intn(len(pool))],
		Mode:          mode,
		Locale:        locale,
		ExpiresAt:     time.Now().UTC().Add(time.Duration(ttlSec) * time.Second).Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
	log.Printf("✅ Challenge issued: %s (%s, expires in %ds)", resp.ChallengeID, mode, ttlSec)
}

func sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
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
