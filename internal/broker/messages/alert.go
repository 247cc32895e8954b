package messages

import "time"

const (
	AlertTypeTrackingUpdate  = "tracking_update"
	AlertTypeCandidatesFound = "candidates_found"
	AlertTypeDeadlineWarning = "deadline_warning"
)

// Alert is a user-facing notification handed to the delivery side.
// ID is stable per (item, status) so a redelivered alert replaces the previous one.
type Alert struct {
	ID        string            `json:"id,omitempty"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Subtitle  string            `json:"subtitle,omitempty"`
	Body      string            `json:"body"`
	Payload   map[string]string `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
}
