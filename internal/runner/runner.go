// Package runner spawns the Task Runner (claude -p) for one prompt.
package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// Request is the payload of one Task Runner invocation
type Request struct {
	Prompt       string
	AllowedTools []string
}

// Result is the captured outcome of a finished process. A non-zero ExitCode
// is a normal result, not an error.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	StartedAt time.Time
	Duration  time.Duration
	TimedOut  bool
}

// Invoker runs a task runner request to completion
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// ClaudeRunner invokes the claude CLI in print mode
type ClaudeRunner struct {
	Binary    string
	WorkDir   string
	PathEnv   string
	Timeout   time.Duration
	ExtraArgs []string
}

// Invoke spawns the binary and blocks until it exits
func (r *ClaudeRunner) Invoke(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.Validationf("task has no prompt")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := r.buildCommand(ctx, req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := &Result{StartedAt: time.Now()}
	if err := cmd.Start(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "starting %s", cmd.Path), domain.ErrTaskRunner)
	}
	err := cmd.Wait()
	res.Duration = time.Since(res.StartedAt)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	switch {
	case err == nil:
		res.ExitCode = 0
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.TimedOut = true
		res.Stderr = strings.TrimSpace(res.Stderr + "\ntask runner timed out after " + r.Timeout.String())
	case ctx.Err() != nil:
		return res, errors.Mark(errors.Wrap(ctx.Err(), "task runner interrupted"), domain.ErrTaskRunner)
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, errors.Mark(errors.Wrap(err, "waiting for task runner"), domain.ErrTaskRunner)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// buildCommand creates the task runner command line
func (r *ClaudeRunner) buildCommand(ctx context.Context, req Request) *exec.Cmd {
	binary := r.Binary
	if binary == "" {
		binary = "claude"
	}

	args := []string{"-p", req.Prompt}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(req.AllowedTools, ","))
	}
	args = append(args, r.ExtraArgs...)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = r.WorkDir
	cmd.Env = r.environ()
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// environ inherits the caller's environment with PATH replaced
func (r *ClaudeRunner) environ() []string {
	env := os.Environ()
	if r.PathEnv == "" {
		return env
	}
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "PATH="+r.PathEnv)
}
