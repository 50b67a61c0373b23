package controller

import "time"

// OutcomeStatus is how a fire ended
type OutcomeStatus string

const (
	OutcomeSuccess        OutcomeStatus = "success"
	OutcomeSkipped        OutcomeStatus = "skipped"
	OutcomeRetryScheduled OutcomeStatus = "retry_scheduled"
	OutcomeFailed         OutcomeStatus = "failed"
	OutcomeError          OutcomeStatus = "error"
)

// Outcome summarises one fire for the CLI
type Outcome struct {
	ScheduleID      string        `json:"schedule_id"`
	ScheduleName    string        `json:"schedule_name"`
	Status          OutcomeStatus `json:"status"`
	Retry           bool          `json:"retry"`
	Attempt         int           `json:"attempt"`
	ExitCode        *int          `json:"exit_code,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
	RetryCount      int           `json:"retry_count"`
	RetryAt         *time.Time    `json:"retry_at,omitempty"`
	Notified        bool          `json:"notified"`
	LogFile         string        `json:"log_file"`
	Error           string        `json:"error,omitempty"`
}

// OK reports whether the fire should exit with status 0
func (o *Outcome) OK() bool {
	return o != nil && (o.Status == OutcomeSuccess || o.Status == OutcomeSkipped)
}
