// Package catalog implements the operator-facing schedule operations:
// create, update, delete and list.
package catalog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-sched/internal/domain"
	"github.com/hochfrequenz/claude-sched/internal/execlog"
	"github.com/hochfrequenz/claude-sched/internal/trigger"
)

// Store is the schedule persistence the catalog mutates
type Store interface {
	List(enabledOnly bool) ([]*domain.Schedule, error)
	Get(id string) (*domain.Schedule, error)
	Insert(s *domain.Schedule) error
	Update(id string, fn func(*domain.Schedule) error) (*domain.Schedule, error)
	Delete(id string) (*domain.Schedule, error)
}

// Triggers manages the OS scheduler units of schedules
type Triggers interface {
	Check(ctx context.Context, s *domain.Schedule) error
	Sync(ctx context.Context, s *domain.Schedule) []string
	Remove(ctx context.Context, id string) []string
	ClearRetry(ctx context.Context, id string) error
}

// RunHistory is the run ledger cleaned up on delete
type RunHistory interface {
	DeleteForSchedule(scheduleID string) (int64, error)
}

// DashboardRefresher regenerates the dashboard document
type DashboardRefresher interface {
	Refresh(ctx context.Context) error
}

// Service implements the catalog operations
type Service struct {
	store     Store
	triggers  Triggers
	dashboard DashboardRefresher
	history   RunHistory
	logRoot   string
	now       func() time.Time
	log       *zap.SugaredLogger
}

// Option configures a Service
type Option func(*Service)

// WithDashboard refreshes the dashboard after every mutation
func WithDashboard(d DashboardRefresher) Option {
	return func(s *Service) { s.dashboard = d }
}

// WithHistory deletes run history together with logs
func WithHistory(h RunHistory) Option {
	return func(s *Service) { s.history = h }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the diagnostic logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a catalog over store and triggers. logRoot is where
// execution logs live.
func NewService(store Store, triggers Triggers, logRoot string, opts ...Option) *Service {
	s := &Service{
		store:    store,
		triggers: triggers,
		logRoot:  logRoot,
		now:      time.Now,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is a mutated schedule plus non-fatal warnings
type Result struct {
	Schedule *domain.Schedule `json:"schedule"`
	Warnings []string         `json:"warnings,omitempty"`
}

// DeleteResult describes a removed schedule
type DeleteResult struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	LogsDeleted int      `json:"logs_deleted"`
	KeptLogs    bool     `json:"kept_logs"`
	Warnings    []string `json:"warnings,omitempty"`
}

// CreateInput carries the create flags. Pointer fields are optional.
type CreateInput struct {
	Name            string
	Description     string
	Prompt          string
	Schedule        string
	Tools           string
	MissedRun       string
	MaxRetries      *int
	RetryInterval   *int
	Enabled         *bool
	ObsidianFolder  string
	NotifyOnFailure *bool
}

// Create validates input, persists a new schedule and installs its trigger
func (s *Service) Create(ctx context.Context, in CreateInput) (*Result, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", in.Name}, {"prompt", in.Prompt}, {"schedule", in.Schedule}, {"tools", in.Tools},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, domain.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}

	tools := domain.ParseTools(in.Tools)
	if len(tools) == 0 {
		return nil, domain.Validationf("tools must name at least one tool")
	}
	interval, err := trigger.Parse(in.Schedule)
	if err != nil {
		return nil, err
	}
	action, err := domain.ParseMissedRunAction(in.MissedRun)
	if err != nil {
		return nil, err
	}

	policy := domain.MissedRunPolicy{
		Action:               action,
		MaxRetries:           domain.DefaultMaxRetries,
		RetryIntervalMinutes: domain.DefaultRetryIntervalMinutes,
	}
	if in.MaxRetries != nil {
		policy.MaxRetries = *in.MaxRetries
	}
	if in.RetryInterval != nil {
		policy.RetryIntervalMinutes = *in.RetryInterval
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sched := &domain.Schedule{
		ID:          domain.NewScheduleID(in.Name),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Enabled:     in.Enabled == nil || *in.Enabled,
		Schedule: domain.ScheduleSpec{
			Expression: strings.TrimSpace(in.Schedule),
			Interval:   interval,
		},
		Task:            domain.Task{Prompt: in.Prompt, AllowedTools: tools},
		MissedRunPolicy: policy,
		Output: domain.Output{
			ObsidianFolder:  strings.TrimSpace(in.ObsidianFolder),
			NotifyOnFailure: in.NotifyOnFailure == nil || *in.NotifyOnFailure,
		},
		Created:      now,
		LastModified: now,
	}

	if err := s.triggers.Check(ctx, sched); err != nil {
		return nil, err
	}
	if err := s.store.Insert(sched); err != nil {
		return nil, err
	}
	s.log.Infow("Created schedule", "id", sched.ID, "schedule", sched.Schedule.Expression)

	res := &Result{Schedule: sched}
	res.Warnings = append(res.Warnings, s.triggers.Sync(ctx, sched)...)
	res.Warnings = append(res.Warnings, s.refresh(ctx)...)
	return res, nil
}

// UpdateInput carries the update flags. Nil means "leave unchanged".
type UpdateInput struct {
	Name            *string
	Description     *string
	Prompt          *string
	Schedule        *string
	Tools           *string
	MissedRun       *string
	MaxRetries      *int
	RetryInterval   *int
	Enabled         *bool
	ObsidianFolder  *string
	NotifyOnFailure *bool
}

func (in UpdateInput) empty() bool {
	return in == UpdateInput{}
}

// Update applies the supplied fields. The trigger is rebuilt only when the
// schedule expression or enabled flag changed.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Result, error) {
	current, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if in.empty() {
		return nil, domain.Validationf("no fields to update")
	}

	var interval *domain.Interval
	if in.Schedule != nil {
		iv, err := trigger.Parse(*in.Schedule)
		if err != nil {
			return nil, err
		}
		interval = &iv
	}
	var action *domain.MissedRunAction
	if in.MissedRun != nil {
		a, err := domain.ParseMissedRunAction(*in.MissedRun)
		if err != nil {
			return nil, err
		}
		action = &a
	}
	var tools []string
	if in.Tools != nil {
		tools = domain.ParseTools(*in.Tools)
		if len(tools) == 0 {
			return nil, domain.Validationf("tools must name at least one tool")
		}
	}

	apply := func(sched *domain.Schedule) (bool, error) {
		resync := false
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return false, domain.Validationf("name must not be empty")
			}
			sched.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			sched.Description = strings.TrimSpace(*in.Description)
		}
		if in.Prompt != nil {
			if strings.TrimSpace(*in.Prompt) == "" {
				return false, domain.Validationf("prompt must not be empty")
			}
			sched.Task.Prompt = *in.Prompt
		}
		if tools != nil {
			sched.Task.AllowedTools = tools
		}
		if interval != nil {
			expr := strings.TrimSpace(*in.Schedule)
			if expr != sched.Schedule.Expression {
				resync = true
			}
			sched.Schedule = domain.ScheduleSpec{Expression: expr, Interval: *interval}
		}
		if in.Enabled != nil {
			if *in.Enabled != sched.Enabled {
				resync = true
			}
			sched.Enabled = *in.Enabled
		}
		if !sched.Enabled {
			// a disabled schedule keeps no pending retry
			sched.NextRetryAt = nil
			sched.RetryCount = 0
		}
		if action != nil {
			sched.MissedRunPolicy.Action = *action
		}
		if in.MaxRetries != nil {
			sched.MissedRunPolicy.MaxRetries = *in.MaxRetries
		}
		if in.RetryInterval != nil {
			sched.MissedRunPolicy.RetryIntervalMinutes = *in.RetryInterval
		}
		if in.ObsidianFolder != nil {
			sched.Output.ObsidianFolder = strings.TrimSpace(*in.ObsidianFolder)
		}
		if in.NotifyOnFailure != nil {
			sched.Output.NotifyOnFailure = *in.NotifyOnFailure
		}
		return resync, validatePolicy(sched.MissedRunPolicy)
	}

	// dry run on a copy so an invalid trigger is rejected before the store changes
	preview := *current
	resync, err := apply(&preview)
	if err != nil {
		return nil, err
	}
	if resync {
		if err := s.triggers.Check(ctx, &preview); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.Update(id, func(sched *domain.Schedule) error {
		if _, err := apply(sched); err != nil {
			return err
		}
		sched.LastModified = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("Updated schedule", "id", id, "resync", resync)

	res := &Result{Schedule: updated}
	if resync {
		res.Warnings = append(res.Warnings, s.triggers.Sync(ctx, updated)...)
	}
	if !updated.Enabled {
		if err := s.triggers.ClearRetry(ctx, id); err != nil {
			s.log.Warnw("Clearing pending retries failed", "id", id, "error", err)
			res.Warnings = append(res.Warnings, "clearing pending retries: "+err.Error())
		}
	}
	res.Warnings = append(res.Warnings, s.refresh(ctx)...)
	return res, nil
}

// Delete removes a schedule, its trigger and, unless keepLogs, its logs and
// run history.
func (s *Service) Delete(ctx context.Context, id string, keepLogs bool) (*DeleteResult, error) {
	if _, err := s.store.Get(id); err != nil {
		return nil, err
	}

	res := &DeleteResult{ID: id, KeptLogs: keepLogs}
	res.Warnings = append(res.Warnings, s.triggers.Remove(ctx, id)...)

	removed, err := s.store.Delete(id)
	if err != nil {
		return nil, err
	}
	res.Name = removed.Name

	if !keepLogs {
		n, err := execlog.DeleteFor(s.logRoot, id)
		res.LogsDeleted = n
		if err != nil {
			res.Warnings = append(res.Warnings, "deleting logs: "+err.Error())
		}
		if s.history != nil {
			if _, err := s.history.DeleteForSchedule(id); err != nil {
				res.Warnings = append(res.Warnings, "deleting run history: "+err.Error())
			}
		}
	}
	s.log.Infow("Deleted schedule", "id", id, "logs_deleted", res.LogsDeleted)

	res.Warnings = append(res.Warnings, s.refresh(ctx)...)
	return res, nil
}

// List returns schedules ordered by creation
func (s *Service) List(enabledOnly bool) ([]*domain.Schedule, error) {
	return s.store.List(enabledOnly)
}

func (s *Service) refresh(ctx context.Context) []string {
	if s.dashboard == nil {
		return nil
	}
	if err := s.dashboard.Refresh(ctx); err != nil {
		s.log.Warnw("Dashboard refresh failed", "error", err)
		return []string{"refreshing dashboard: " + err.Error()}
	}
	return nil
}

func validatePolicy(p domain.MissedRunPolicy) error {
	if p.MaxRetries < 0 {
		return domain.Validationf("max retries must not be negative")
	}
	if p.RetryIntervalMinutes < 1 {
		return domain.Validationf("retry interval must be at least one minute")
	}
	return nil
}
