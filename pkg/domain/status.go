package domain

import "time"

// RunStatus is the mirrored progress snapshot a monitoring surface serves.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Done      bool      `json:"done"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
