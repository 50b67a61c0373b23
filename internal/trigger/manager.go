package trigger

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// Options configures a Manager
type Options struct {
	Namespace  string
	UnitDir    string
	Program    string
	ConfigPath string
	LogDir     string
	PathEnv    string
	WorkDir    string
	// Register loads units into the OS scheduler. When false units are only
	// written to disk.
	Register bool
	Validate bool
}

// Manager owns the OS scheduler units that fire schedules
type Manager struct {
	backend Backend
	opts    Options
	log     *zap.SugaredLogger
}

// NewManager creates a Manager for the given backend
func NewManager(backend Backend, opts Options, log *zap.SugaredLogger) *Manager {
	if opts.UnitDir == "" {
		opts.UnitDir = backend.DefaultUnitDir()
	}
	if opts.Namespace == "" {
		opts.Namespace = "com.claude-sched"
	}
	if opts.Program == "" {
		if exe, err := os.Executable(); err == nil {
			if resolved, err := filepath.EvalSymlinks(exe); err == nil {
				exe = resolved
			}
			opts.Program = exe
		} else {
			opts.Program = "claude-sched"
		}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{backend: backend, opts: opts, log: log}
}

// Backend returns the scheduler backend in use
func (m *Manager) Backend() Backend {
	return m.backend
}

// Label is the unit label for a schedule's recurring trigger
func (m *Manager) Label(id string) string {
	return m.opts.Namespace + ".schedule." + id
}

// RetryLabel is the unit label for one retry attempt
func (m *Manager) RetryLabel(id string, attempt int) string {
	return m.retryPrefix(id) + strconv.Itoa(attempt)
}

func (m *Manager) retryPrefix(id string) string {
	return m.opts.Namespace + ".retry." + id + "."
}

// Compile builds the recurring unit for a schedule
func (m *Manager) Compile(s *domain.Schedule) Unit {
	label := m.Label(s.ID)
	return m.unit(label, CalendarEntries(s.Schedule.Interval), false, "run", s.ID)
}

func (m *Manager) unit(label string, entries []CalendarEntry, oneShot bool, args ...string) Unit {
	program := []string{m.opts.Program}
	if m.opts.ConfigPath != "" {
		program = append(program, "--config", m.opts.ConfigPath)
	}
	program = append(program, args...)

	logs := filepath.Join(m.opts.LogDir, "triggers")
	return Unit{
		Label:      label,
		Program:    program,
		Entries:    entries,
		OneShot:    oneShot,
		StdoutPath: filepath.Join(logs, label+".out.log"),
		StderrPath: filepath.Join(logs, label+".err.log"),
		PathEnv:    m.opts.PathEnv,
		WorkDir:    m.opts.WorkDir,
	}
}

// UnitPaths returns where the schedule's unit files live
func (m *Manager) UnitPaths(id string) []string {
	return m.paths(m.Label(id))
}

func (m *Manager) paths(label string) []string {
	files := m.backend.Files(label)
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Join(m.opts.UnitDir, f)
	}
	return out
}

// Check compiles and renders the schedule's unit into a scratch directory
// and runs the backend validator on it. Nothing is registered.
func (m *Manager) Check(ctx context.Context, s *domain.Schedule) error {
	if err := ValidateInterval(s.Schedule.Interval); err != nil {
		return err
	}
	files, err := m.backend.Render(m.Compile(s))
	if err != nil {
		return errors.Mark(err, domain.ErrTriggerRegistration)
	}
	if !m.opts.Validate {
		return nil
	}

	dir, err := os.MkdirTemp("", "claude-sched-check-")
	if err != nil {
		return errors.Mark(errors.Wrap(err, "creating scratch dir"), domain.ErrTriggerRegistration)
	}
	defer os.RemoveAll(dir)

	paths, err := writeFiles(dir, files)
	if err != nil {
		return errors.Mark(err, domain.ErrTriggerRegistration)
	}
	if err := m.backend.Validate(ctx, paths); err != nil {
		return errors.Mark(
			errors.Wrapf(err, "%s rejected trigger for %q", m.backend.Name(), s.Schedule.Expression),
			domain.ErrTriggerRegistration)
	}
	return nil
}

// Sync rewrites the schedule's unit and registers it when the schedule is
// enabled. Failures are returned as warnings; the store stays authoritative.
func (m *Manager) Sync(ctx context.Context, s *domain.Schedule) []string {
	var warnings []string
	label := m.Label(s.ID)

	if m.opts.Register && m.exists(label) {
		if err := m.backend.Unregister(ctx, m.opts.UnitDir, label); err != nil {
			m.log.Debugw("Unregister before sync failed", "label", label, "error", err)
		}
	}

	if err := os.MkdirAll(filepath.Join(m.opts.LogDir, "triggers"), 0o755); err != nil {
		warnings = append(warnings, "creating trigger log dir: "+err.Error())
	}

	files, err := m.backend.Render(m.Compile(s))
	if err != nil {
		return append(warnings, err.Error())
	}
	paths, err := writeFiles(m.opts.UnitDir, files)
	if err != nil {
		return append(warnings, err.Error())
	}
	m.log.Debugw("Wrote trigger unit", "label", label, "paths", paths)

	if m.opts.Validate {
		if err := m.backend.Validate(ctx, paths); err != nil {
			return append(warnings, "validating trigger unit: "+err.Error())
		}
	}

	if !s.Enabled || !m.opts.Register {
		return warnings
	}
	if err := m.backend.Register(ctx, m.opts.UnitDir, label); err != nil {
		warnings = append(warnings, "registering trigger "+label+": "+err.Error())
		m.log.Warnw("Trigger registration failed", "label", label, "error", err)
	}
	return warnings
}

// Remove unregisters and deletes all units belonging to a schedule
func (m *Manager) Remove(ctx context.Context, id string) []string {
	var warnings []string
	label := m.Label(id)

	if m.opts.Register && m.exists(label) {
		if err := m.backend.Unregister(ctx, m.opts.UnitDir, label); err != nil {
			warnings = append(warnings, "unregistering trigger "+label+": "+err.Error())
		}
	}
	for _, p := range m.paths(label) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			warnings = append(warnings, "removing "+p+": "+err.Error())
		}
	}
	if err := m.ClearRetry(ctx, id); err != nil {
		warnings = append(warnings, err.Error())
	}
	return warnings
}

// ScheduleRetry installs a one-shot unit that fires "run <id> --retry" at
// the given minute.
func (m *Manager) ScheduleRetry(ctx context.Context, id string, attempt int, at time.Time) error {
	label := m.RetryLabel(id, attempt)
	u := m.unit(label, []CalendarEntry{OneShotEntry(at)}, true, "run", id, "--retry")

	if m.opts.Register && m.exists(label) {
		_ = m.backend.Unregister(ctx, m.opts.UnitDir, label)
	}
	if err := os.MkdirAll(filepath.Join(m.opts.LogDir, "triggers"), 0o755); err != nil {
		return errors.Mark(errors.Wrap(err, "creating trigger log dir"), domain.ErrTriggerRegistration)
	}
	files, err := m.backend.Render(u)
	if err != nil {
		return errors.Mark(err, domain.ErrTriggerRegistration)
	}
	if _, err := writeFiles(m.opts.UnitDir, files); err != nil {
		return errors.Mark(err, domain.ErrTriggerRegistration)
	}
	if !m.opts.Register {
		return nil
	}
	if err := m.backend.Register(ctx, m.opts.UnitDir, label); err != nil {
		return errors.Mark(errors.Wrapf(err, "registering retry %s", label), domain.ErrTriggerRegistration)
	}
	return nil
}

// ClearRetry removes every pending retry unit for a schedule
func (m *Manager) ClearRetry(ctx context.Context, id string) error {
	labels, err := m.RetryLabels(id)
	if err != nil {
		return err
	}
	var errs error
	for _, label := range labels {
		if m.opts.Register {
			if err := m.backend.Unregister(ctx, m.opts.UnitDir, label); err != nil {
				m.log.Debugw("Unregister retry failed", "label", label, "error", err)
			}
		}
		for _, p := range m.paths(label) {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "removing %s", p))
			}
		}
	}
	return errs
}

// RetryLabels lists the retry unit labels present on disk for a schedule
func (m *Manager) RetryLabels(id string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.opts.UnitDir, m.retryPrefix(id)+"*"))
	if err != nil {
		return nil, errors.Wrap(err, "listing retry units")
	}
	seen := make(map[string]bool)
	var labels []string
	for _, match := range matches {
		base := filepath.Base(match)
		label := strings.TrimSuffix(base, filepath.Ext(base))
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, nil
}

func (m *Manager) exists(label string) bool {
	for _, p := range m.paths(label) {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func writeFiles(dir string, files map[string][]byte) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating unit dir %s", dir)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, files[name], 0o644); err != nil {
			return nil, errors.Wrapf(err, "writing unit %s", p)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
