package types

import (
	"time"
)

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Sessions  int       `json:"sessions"`
	Timestamp time.Time `json:"timestamp"`
}

// MethodsResponse is returned from GET /rpc/methods
type MethodsResponse struct {
	Methods []string `json:"methods"`
	Count   int      `json:"count"`
}
