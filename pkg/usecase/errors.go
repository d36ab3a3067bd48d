package usecase

import "errors"

// Sentinel errors for use case layer
var (
	ErrSlackNotConfigured  = errors.New("slack is not configured")
	ErrGitHubNotConfigured = errors.New("github app is not configured")
	ErrNotionNotConfigured = errors.New("notion is not configured")
)

// Context keys for error values
const (
	ChainIDKey = "chain_id"
	EventIDKey = "event_id"
)
