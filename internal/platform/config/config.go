package config

import (
	"os"
	"strconv"
	"time"
)

// Client captures the remote-service configuration of the liveness client.
// Core components take explicit values; only mains should read the environment.
type Client struct {
	ChallengeBaseURL   string
	VerifyBaseURL      string
	ChallengeStartPath string
	VerifyPath         string
	HTTPTimeout        time.Duration
	Locale             string
}

// FromEnv builds a Client config from environment variables so main stays lean.
func FromEnv() Client {
	return Client{
		ChallengeBaseURL:   getEnv("CHALLENGE_BASE_URL", "http://127.0.0.1:5012"),
		VerifyBaseURL:      getEnv("VERIFY_BASE_URL", "http://127.0.0.1:5015"),
		ChallengeStartPath: getEnv("CHALLENGE_START_PATH", "/api/challenge/start"),
		VerifyPath:         getEnv("VERIFY_PATH", "/api/multimodal/verify"),
		HTTPTimeout:        getEnvSeconds("HTTP_TIMEOUT_S", 25),
		Locale:             getEnv("CHALLENGE_LOCALE", "it-IT"),
	}
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getEnvSeconds(name string, fallback int) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return time.Duration(fallback) * time.Second
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(secs) * time.Second
}
