package session

import "time"

// CreateRequest defines payload for creating a new browser session.
type CreateRequest struct {
	Kind Kind `json:"kind"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	Kind            Kind      `json:"kind"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
