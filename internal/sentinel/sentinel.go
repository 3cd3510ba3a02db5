package sentinel

import "errors"

// Sentinel dependency errors. Platform layers (media devices, HTTP transports)
// return these (optionally wrapped) so the orchestration layer can translate
// them into domain errors exactly once.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrExpired          = errors.New("expired")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnavailable      = errors.New("unavailable")
)
