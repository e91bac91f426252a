package client

import "time"

// Instance is one worker process as reported by GET /status.
type Instance struct {
	Name        string    `json:"name"`
	Worker      string    `json:"worker"`
	Queue       string    `json:"queue"`
	Connection  string    `json:"connection"`
	PID         int       `json:"pid"`
	Running     bool      `json:"running"`
	StartedAt   time.Time `json:"started_at"`
	Restarts    int       `json:"restarts"`
	NextAttempt time.Time `json:"next_attempt,omitzero"`
}

// Fleet is the full GET /status response.
type Fleet struct {
	FleetStartedAt time.Time  `json:"fleet_started_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Instances      []Instance `json:"instances"`
}

// StatusQuery filters GET /status; use Instance for a single name.
type StatusQuery struct {
	Worker string
}

// Health is the GET /healthz response.
type Health struct {
	Status  string `json:"status"`
	Running int    `json:"running"`
	Total   int    `json:"total"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
