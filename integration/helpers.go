//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

var (
	buildOnce sync.Once
	builtPath string
	buildErr  error
)

// binaryPath builds the CLI once per test run and returns its path
func binaryPath(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			buildErr = errors.New("cannot locate integration package")
			return
		}
		root := filepath.Dir(filepath.Dir(filename))
		dir, err := os.MkdirTemp("", "claude-sched-bin-")
		if err != nil {
			buildErr = err
			return
		}
		builtPath = filepath.Join(dir, "claude-sched")
		cmd := exec.Command("go", "build", "-o", builtPath, "./cmd/claude-sched")
		cmd.Dir = root
		if out, err := cmd.CombinedOutput(); err != nil {
			buildErr = errors.New(err.Error() + "\n" + string(out))
		}
	})
	if buildErr != nil {
		t.Fatalf("Failed to build binary: %v", buildErr)
	}
	return builtPath
}

// env is an isolated data dir, unit dir and config for one test
type env struct {
	t          *testing.T
	bin        string
	dir        string
	configPath string
	unitDir    string
	logDir     string
}

// newEnv writes a config whose runner is a shell script that exits with
// the code stored in <dir>/exit_code (default 0) and prints its arguments.
func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		t:          t,
		bin:        binaryPath(t),
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		unitDir:    filepath.Join(dir, "units"),
		logDir:     filepath.Join(dir, "data", "logs"),
	}

	fake := filepath.Join(dir, "claude")
	script := `#!/bin/sh
echo "fake claude $*"
code=$(cat "` + filepath.Join(dir, "exit_code") + `" 2>/dev/null || echo 0)
if [ "$code" != "0" ]; then echo "simulated failure" >&2; fi
exit $code
`
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	config := `[general]
data_dir = "` + filepath.Join(dir, "data") + `"

[runner]
binary = "` + fake + `"
work_dir = "` + dir + `"
path = "/usr/bin:/bin"

[trigger]
backend = "systemd"
unit_dir = "` + e.unitDir + `"
program = "` + e.bin + `"
register = false
validate = false

[output]
vault_path = "` + filepath.Join(dir, "vault") + `"

[notifications]
desktop = false

[logging]
level = "error"
`
	if err := os.WriteFile(e.configPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	return e
}

// setExitCode controls what the fake task runner returns
func (e *env) setExitCode(code string) {
	e.t.Helper()
	if err := os.WriteFile(filepath.Join(e.dir, "exit_code"), []byte(code), 0o644); err != nil {
		e.t.Fatal(err)
	}
}

// result is one CLI invocation
type result struct {
	stdout   []byte
	stderr   []byte
	exitCode int
}

func (e *env) run(args ...string) result {
	e.t.Helper()
	cmd := exec.Command(e.bin, append([]string{"--config", e.configPath}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	res := result{stdout: stdout.Bytes(), stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.exitCode = exitErr.ExitCode()
	default:
		e.t.Fatalf("running %v: %v", args, err)
	}
	return res
}

// decode parses a JSON document from stdout or stderr
func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, data)
	}
	return out
}
