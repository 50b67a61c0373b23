package trigger

import (
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// Unit is a rendered-agnostic description of one OS scheduler job
type Unit struct {
	Label      string
	Program    []string
	Entries    []CalendarEntry
	OneShot    bool
	StdoutPath string
	StderrPath string
	PathEnv    string
	WorkDir    string
}

// Backend renders units for one native scheduler and drives its CLI
type Backend interface {
	Name() string
	DefaultUnitDir() string
	// Files lists the unit file names owned by a label
	Files(label string) []string
	Render(u Unit) (map[string][]byte, error)
	// Validate checks rendered unit files. A missing validator is not an error.
	Validate(ctx context.Context, paths []string) error
	Register(ctx context.Context, dir, label string) error
	Unregister(ctx context.Context, dir, label string) error
}

// CommandRunner executes external scheduler commands
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes the command and returns its combined output
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NewBackend returns the backend registered under name
func NewBackend(name string, runner CommandRunner) (Backend, error) {
	if runner == nil {
		runner = ExecRunner{}
	}
	switch strings.ToLower(name) {
	case "launchd":
		return &Launchd{runner: runner}, nil
	case "systemd":
		return &Systemd{runner: runner}, nil
	default:
		return nil, domain.Validationf("unknown trigger backend %q (expected launchd or systemd)", name)
	}
}

// runTool runs a scheduler command and folds its output into the error
func runTool(ctx context.Context, runner CommandRunner, name string, args ...string) error {
	out, err := runner.Run(ctx, name, args...)
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return errors.Wrapf(err, "%s %s", name, strings.Join(args, " "))
	}
	return errors.Wrapf(err, "%s %s: %s", name, strings.Join(args, " "), msg)
}

// isMissingTool reports whether err means the command binary is not installed
func isMissingTool(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
