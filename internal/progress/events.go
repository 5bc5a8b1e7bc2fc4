package progress

import "time"

type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventRunWarning   EventType = "run_warning"
	EventRunFinished  EventType = "run_finished"
	EventFileStarted  EventType = "file_started"
	EventFileFinished EventType = "file_finished"
)

type Event struct {
	Type         EventType `json:"type"`
	At           time.Time `json:"at"`
	RunID        string    `json:"run_id,omitempty"`
	Path         string    `json:"path,omitempty"`
	Status       string    `json:"status,omitempty"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	FindingCount int       `json:"finding_count,omitempty"`
	FileCount    int       `json:"file_count,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
}
