package session

import "time"

// Record is one session entry. Data is caller-supplied and opaque to this package.
type Record struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Data         map[string]any `json:"data,omitempty"`
}
