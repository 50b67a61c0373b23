package domain

import (
	"strings"
	"time"
)

// DocumentVersion is the schema version written to the schedule store
const DocumentVersion = 1

// Defaults applied when a schedule is created without explicit values
const (
	DefaultMaxRetries           = 3
	DefaultRetryIntervalMinutes = 15
)

// MissedRunAction is the schedule's declared behaviour when a run fails
type MissedRunAction string

const (
	ActionSkip    MissedRunAction = "skip"
	ActionCatchUp MissedRunAction = "catch-up"
	ActionRetry   MissedRunAction = "retry"
)

// ParseMissedRunAction validates an action name. Empty means skip.
func ParseMissedRunAction(s string) (MissedRunAction, error) {
	switch MissedRunAction(strings.ToLower(strings.TrimSpace(s))) {
	case "", ActionSkip:
		return ActionSkip, nil
	case ActionCatchUp:
		return ActionCatchUp, nil
	case ActionRetry:
		return ActionRetry, nil
	default:
		return "", Validationf("invalid missed-run action %q (expected skip, catch-up or retry)", s)
	}
}

// RunStatus is the terminal status of a run recorded in last_run
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusFailed  RunStatus = "failed"
)

// Interval is a compiled trigger: a time of day plus an
// optional weekday set (0=Sunday). An empty Weekday means every day.
type Interval struct {
	Hour    int   `json:"Hour"`
	Minute  int   `json:"Minute"`
	Weekday []int `json:"Weekday,omitempty"`
}

// Daily reports whether the interval fires every day
func (i Interval) Daily() bool {
	return len(i.Weekday) == 0
}

// ScheduleSpec keeps the operator's expression next to its compiled form
type ScheduleSpec struct {
	Expression string   `json:"expression"`
	Interval   Interval `json:"interval"`
}

// Task is the payload handed to the task runner
type Task struct {
	Prompt       string   `json:"prompt"`
	AllowedTools []string `json:"allowed_tools"`
}

// MissedRunPolicy controls retries after a failed run
type MissedRunPolicy struct {
	Action               MissedRunAction `json:"action"`
	MaxRetries           int             `json:"max_retries"`
	RetryIntervalMinutes int             `json:"retry_interval_minutes"`
}

// Output controls publishing and failure escalation
type Output struct {
	ObsidianFolder  string `json:"obsidian_folder,omitempty"`
	NotifyOnFailure bool   `json:"notify_on_failure"`
}

// LastRun is written by the execution controller once the task runner has exited
type LastRun struct {
	Timestamp       time.Time `json:"timestamp"`
	Status          RunStatus `json:"status"`
	DurationSeconds int       `json:"duration_seconds"`
	LogFile         string    `json:"log_file"`
}

// Schedule is a persisted recurring automation job
type Schedule struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Enabled         bool            `json:"enabled"`
	Schedule        ScheduleSpec    `json:"schedule"`
	Task            Task            `json:"task"`
	MissedRunPolicy MissedRunPolicy `json:"missed_run_policy"`
	Output          Output          `json:"output"`
	LastRun         *LastRun        `json:"last_run,omitempty"`
	RetryCount      int             `json:"retry_count,omitempty"`
	NextRetryAt     *time.Time      `json:"next_retry_at,omitempty"`
	Created         time.Time       `json:"created"`
	LastModified    time.Time       `json:"last_modified"`
}

// CanRetry reports whether a failed run may schedule another attempt
func (s *Schedule) CanRetry() bool {
	return s.MissedRunPolicy.Action == ActionRetry && s.RetryCount < s.MissedRunPolicy.MaxRetries
}

// Document is the on-disk schedule store
type Document struct {
	Version     int         `json:"version"`
	LastUpdated time.Time   `json:"last_updated"`
	Schedules   []*Schedule `json:"schedules"`
}

// Find returns the schedule with the given id and its index, or -1
func (d *Document) Find(id string) (*Schedule, int) {
	for i, s := range d.Schedules {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

// ParseTools splits a comma separated tool list into an ordered set
func ParseTools(csv string) []string {
	seen := make(map[string]struct{})
	var tools []string
	for _, part := range strings.Split(csv, ",") {
		tool := strings.TrimSpace(part)
		if tool == "" {
			continue
		}
		if _, dup := seen[tool]; dup {
			continue
		}
		seen[tool] = struct{}{}
		tools = append(tools, tool)
	}
	return tools
}
