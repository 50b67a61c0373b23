// Package controller drives one fire of a schedule: invoke the task runner,
// record the outcome, and either schedule a retry or escalate.
package controller

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-sched/internal/domain"
	"github.com/hochfrequenz/claude-sched/internal/effects"
	"github.com/hochfrequenz/claude-sched/internal/execlog"
	"github.com/hochfrequenz/claude-sched/internal/history"
	"github.com/hochfrequenz/claude-sched/internal/notify"
	"github.com/hochfrequenz/claude-sched/internal/publish"
	"github.com/hochfrequenz/claude-sched/internal/runner"
)

const (
	promptPreviewLen = 100
	stderrExcerptLen = 500

	notifyTimeout = 30 * time.Second
)

// ScheduleStore is the part of the schedule store the controller needs
type ScheduleStore interface {
	Get(id string) (*domain.Schedule, error)
	Update(id string, fn func(*domain.Schedule) error) (*domain.Schedule, error)
}

// RetryScheduler installs and clears one-shot retry triggers
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, id string, attempt int, at time.Time) error
	ClearRetry(ctx context.Context, id string) error
}

// HistoryRecorder persists run outcomes
type HistoryRecorder interface {
	Record(run *history.Run) error
}

// DashboardRefresher regenerates the dashboard document
type DashboardRefresher interface {
	Refresh(ctx context.Context) error
}

// Publisher writes successful output somewhere the operator reads it
type Publisher interface {
	Publish(n publish.Note) (string, error)
}

// Deps wires a Controller. Store, Invoker and LogRoot are required. A nil
// Notifier means no escalation target is configured.
type Deps struct {
	Store     ScheduleStore
	Invoker   runner.Invoker
	Retries   RetryScheduler
	Notifier  notify.Notifier
	History   HistoryRecorder
	Dashboard DashboardRefresher
	Publisher Publisher
	Effects   *effects.Dispatcher
	LogRoot   string
	Now       func() time.Time
	Logger    *zap.SugaredLogger
}

// Controller runs schedules
type Controller struct {
	Deps
}

// New creates a Controller
func New(deps Deps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &Controller{Deps: deps}
}

// RunOptions modifies a single fire
type RunOptions struct {
	// Retry marks the fire as a retry attempt of a failed run
	Retry bool
}

// Run executes one fire of the schedule. The returned error is reserved for
// failures before the schedule could be loaded; everything after that is
// reported through the Outcome.
func (c *Controller) Run(ctx context.Context, id string, opts RunOptions) (out *Outcome, err error) {
	elog, err := execlog.Open(c.LogRoot, id, c.Now)
	if err != nil {
		return nil, err
	}
	r := &run{c: c, elog: elog, opts: opts}

	sched, err := c.Store.Get(id)
	if err != nil {
		r.append(execlog.EventError, execlog.Fields{"message": err.Error()})
		return nil, err
	}
	r.sched = sched
	r.out = &Outcome{ScheduleID: id, ScheduleName: sched.Name, LogFile: elog.Path(), Retry: opts.Retry}

	if !sched.Enabled {
		r.append(execlog.EventSkipped, execlog.Fields{"reason": "schedule disabled"})
		r.out.Status = OutcomeSkipped
		c.Logger.Infow("Schedule disabled, skipping", "schedule", id)
		return r.out, nil
	}
	if opts.Retry && sched.NextRetryAt == nil {
		r.append(execlog.EventSkipped, execlog.Fields{"reason": "no pending retry"})
		r.out.Status = OutcomeSkipped
		c.Logger.Infow("Stale retry trigger, skipping", "schedule", id)
		return r.out, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.abort(ctx, errors.Newf("panic: %v", rec), string(debug.Stack()))
			out, err = r.out, nil
		}
	}()

	r.execute(ctx)
	return r.out, nil
}

// run holds the state of one fire
type run struct {
	c       *Controller
	elog    *execlog.Log
	opts    RunOptions
	sched   *domain.Schedule
	out     *Outcome
	started time.Time
}

func (r *run) execute(ctx context.Context) {
	c := r.c
	s := r.sched

	if r.opts.Retry {
		r.out.Attempt = s.RetryCount
	} else {
		// a regular fire starts a fresh retry sequence
		s.RetryCount = 0
		if c.Retries != nil {
			if err := c.Retries.ClearRetry(ctx, s.ID); err != nil {
				c.Logger.Warnw("Clearing pending retries failed", "schedule", s.ID, "error", err)
			}
		}
	}

	r.started = c.Now()
	r.append(execlog.EventStarted, execlog.Fields{
		"schedule_name": s.Name,
		"schedule":      s.Schedule.Expression,
		"retry":         r.opts.Retry,
		"attempt":       r.out.Attempt,
	})
	r.append(execlog.EventClaudeInvoked, execlog.Fields{
		"prompt_preview": truncate(s.Task.Prompt, promptPreviewLen),
		"allowed_tools":  s.Task.AllowedTools,
	})
	c.Logger.Infow("Invoking task runner", "schedule", s.ID, "attempt", r.out.Attempt, "retry", r.opts.Retry)

	res, err := c.Invoker.Invoke(ctx, runner.Request{Prompt: s.Task.Prompt, AllowedTools: s.Task.AllowedTools})
	if err != nil {
		r.abort(ctx, err, fmt.Sprintf("%+v", err))
		return
	}

	exitCode := res.ExitCode
	r.out.ExitCode = &exitCode
	r.out.DurationSeconds = res.Duration.Seconds()
	r.append(execlog.EventClaudeCompleted, execlog.Fields{
		"exit_code":        res.ExitCode,
		"duration_seconds": wholeSeconds(res.Duration),
	})

	if res.ExitCode == 0 {
		r.succeed(ctx, res)
		return
	}
	r.failed(ctx, res)
}

func (r *run) succeed(ctx context.Context, res *runner.Result) {
	c := r.c
	s := r.sched

	r.append(execlog.EventCompleted, execlog.Fields{"duration_seconds": wholeSeconds(res.Duration)})
	if err := r.persist(domain.StatusSuccess, 0); err != nil {
		r.abort(ctx, err, fmt.Sprintf("%+v", err))
		return
	}
	r.out.Status = OutcomeSuccess
	c.Logger.Infow("Run completed", "schedule", s.ID, "duration", res.Duration)

	if s.Output.ObsidianFolder != "" && c.Publisher != nil {
		note := publish.Note{
			ScheduleID:   s.ID,
			ScheduleName: s.Name,
			Folder:       s.Output.ObsidianFolder,
			RunAt:        r.started,
			Duration:     res.Duration,
			Output:       res.Stdout,
		}
		r.dispatch("publish", func(context.Context) error {
			path, err := c.Publisher.Publish(note)
			if err == nil {
				c.Logger.Infow("Published run output", "schedule", s.ID, "path", path)
			}
			return err
		})
	}
	r.finish(history.OutcomeSuccess, "")
}

func (r *run) failed(ctx context.Context, res *runner.Result) {
	c := r.c
	s := r.sched

	r.append(execlog.EventFailed, execlog.Fields{
		"exit_code":        res.ExitCode,
		"stderr":           truncate(res.Stderr, stderrExcerptLen),
		"duration_seconds": wholeSeconds(res.Duration),
		"retry_count":      s.RetryCount,
	})
	summary := fmt.Sprintf("exit code %d", res.ExitCode)
	if res.TimedOut {
		summary = "timed out"
	}

	if s.CanRetry() && c.Retries != nil {
		if r.scheduleRetry(ctx) {
			return
		}
	}

	if err := r.persist(domain.StatusFailed, s.RetryCount); err != nil {
		c.Logger.Errorw("Persisting failed run", "schedule", s.ID, "error", err)
		r.append(execlog.EventError, execlog.Fields{"message": err.Error()})
	}
	r.out.Status = OutcomeFailed
	r.out.RetryCount = s.RetryCount
	c.Logger.Warnw("Run failed", "schedule", s.ID, "exit_code", res.ExitCode, "retry_count", s.RetryCount)

	r.escalate(ctx, summary)
	r.finish(history.OutcomeFailed, summary)
}

// scheduleRetry installs the next attempt and reports whether it succeeded
func (r *run) scheduleRetry(ctx context.Context) bool {
	c := r.c
	s := r.sched
	next := s.RetryCount + 1
	at := c.Now().Add(time.Duration(s.MissedRunPolicy.RetryIntervalMinutes) * time.Minute)

	if err := c.Retries.ScheduleRetry(ctx, s.ID, next, at); err != nil {
		c.Logger.Errorw("Scheduling retry failed", "schedule", s.ID, "error", err)
		r.append(execlog.EventError, execlog.Fields{"message": "scheduling retry: " + err.Error()})
		return false
	}
	_, err := c.Store.Update(s.ID, func(stored *domain.Schedule) error {
		stored.RetryCount = next
		stored.NextRetryAt = &at
		return nil
	})
	if err != nil {
		c.Logger.Errorw("Persisting retry state failed", "schedule", s.ID, "error", err)
		r.append(execlog.EventError, execlog.Fields{"message": "persisting retry state: " + err.Error()})
		_ = c.Retries.ClearRetry(ctx, s.ID)
		return false
	}

	s.RetryCount = next
	r.append(execlog.EventRetryScheduled, execlog.Fields{
		"retry_count": next,
		"retry_at":    at.Format(time.RFC3339),
	})
	r.out.Status = OutcomeRetryScheduled
	r.out.RetryCount = next
	r.out.RetryAt = &at
	c.Logger.Infow("Retry scheduled", "schedule", s.ID, "retry_count", next, "retry_at", at)

	r.recordHistory(history.OutcomeRetryScheduled, "")
	return true
}

// abort turns an unexpected error into a failed run with escalation
func (r *run) abort(ctx context.Context, cause error, stack string) {
	c := r.c
	s := r.sched

	r.append(execlog.EventError, execlog.Fields{"message": cause.Error(), "stack": stack})
	c.Logger.Errorw("Run aborted", "schedule", s.ID, "error", cause)

	if err := r.persist(domain.StatusFailed, s.RetryCount); err != nil {
		c.Logger.Errorw("Persisting aborted run", "schedule", s.ID, "error", err)
	}
	r.out.Status = OutcomeError
	r.out.Error = cause.Error()
	r.out.RetryCount = s.RetryCount

	r.escalate(ctx, cause.Error())
	r.finish(history.OutcomeError, cause.Error())
}

func (r *run) escalate(ctx context.Context, summary string) {
	c := r.c
	s := r.sched
	if !s.Output.NotifyOnFailure {
		return
	}

	if c.Notifier == nil {
		c.Logger.Warnw("Failure notification skipped, no notifier configured", "schedule", s.ID)
		r.append(execlog.EventSkipped, execlog.Fields{"reason": "no notifier configured"})
		return
	}

	// the run context is already cancelled when a signal interrupted the runner
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	n := notify.RunFailed(s.ID, s.Name, summary, r.elog.Path(), c.Now())
	if err := c.Notifier.Send(ctx, n); err != nil {
		c.Logger.Warnw("Failure notification failed", "schedule", s.ID, "error", err)
		r.append(execlog.EventError, execlog.Fields{"message": "notification failed: " + err.Error()})
		return
	}
	r.out.Notified = true
	r.append(execlog.EventNotificationSent, execlog.Fields{"title": n.Title})
}

// persist writes last_run and the retry state
func (r *run) persist(status domain.RunStatus, retryCount int) error {
	started := r.started
	if started.IsZero() {
		started = r.c.Now()
	}
	last := &domain.LastRun{
		Timestamp:       started.UTC(),
		Status:          status,
		DurationSeconds: wholeSeconds(time.Duration(r.out.DurationSeconds * float64(time.Second))),
		LogFile:         r.elog.Path(),
	}
	_, err := r.c.Store.Update(r.sched.ID, func(stored *domain.Schedule) error {
		stored.LastRun = last
		stored.RetryCount = retryCount
		stored.NextRetryAt = nil
		return nil
	})
	return err
}

// finish records history and refreshes the dashboard for terminal outcomes
func (r *run) finish(status, errMessage string) {
	r.recordHistory(status, errMessage)
	if r.c.Dashboard != nil {
		r.dispatch("dashboard", r.c.Dashboard.Refresh)
	}
}

func (r *run) recordHistory(status, errMessage string) {
	if r.c.History == nil {
		return
	}
	started := r.started
	if started.IsZero() {
		started = r.c.Now()
	}
	err := r.c.History.Record(&history.Run{
		ScheduleID:      r.sched.ID,
		ScheduleName:    r.sched.Name,
		Attempt:         r.out.Attempt,
		Retry:           r.opts.Retry,
		Status:          status,
		ExitCode:        r.out.ExitCode,
		StartedAt:       started,
		FinishedAt:      r.c.Now(),
		DurationSeconds: r.out.DurationSeconds,
		LogFile:         r.elog.Path(),
		Error:           errMessage,
	})
	if err != nil {
		r.c.Logger.Warnw("Recording run history failed", "schedule", r.sched.ID, "error", err)
	}
}

func (r *run) dispatch(name string, fn func(context.Context) error) {
	if r.c.Effects != nil {
		r.c.Effects.Go(name, fn)
		return
	}
	if err := fn(context.Background()); err != nil {
		r.c.Logger.Warnw("Side effect failed", "effect", name, "error", err)
	}
}

func (r *run) append(event execlog.Event, fields execlog.Fields) {
	if err := r.elog.Append(event, fields); err != nil {
		r.c.Logger.Warnw("Writing execution log failed", "event", event, "error", err)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func wholeSeconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}
