package trigger

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.calls = append(f.calls, call)
	for prefix, err := range f.fail {
		if strings.HasPrefix(call, prefix) {
			return []byte("boom"), err
		}
	}
	return nil, nil
}

func (f *fakeRunner) called(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, backendName string, runner *fakeRunner) *Manager {
	t.Helper()
	backend, err := NewBackend(backendName, runner)
	require.NoError(t, err)
	root := t.TempDir()
	return NewManager(backend, Options{
		Namespace:  "com.test",
		UnitDir:    filepath.Join(root, "units"),
		Program:    "/usr/local/bin/claude-sched",
		ConfigPath: "/etc/claude-sched.toml",
		LogDir:     filepath.Join(root, "logs"),
		PathEnv:    "/usr/bin:/bin",
		WorkDir:    "/home/op",
		Register:   true,
		Validate:   true,
	}, nil)
}

func digestSchedule(enabled bool) *domain.Schedule {
	return &domain.Schedule{
		ID:      "ai-digest-0123abcd",
		Name:    "AI Digest",
		Enabled: enabled,
		Schedule: domain.ScheduleSpec{
			Expression: "6:00 weekdays",
			Interval:   domain.Interval{Hour: 6, Minute: 0, Weekday: []int{1, 2, 3, 4, 5}},
		},
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := NewBackend("cron", nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestManager_CompileProgramArguments(t *testing.T) {
	m := newTestManager(t, "launchd", &fakeRunner{})
	u := m.Compile(digestSchedule(true))

	assert.Equal(t, "com.test.schedule.ai-digest-0123abcd", u.Label)
	assert.Equal(t, []string{
		"/usr/local/bin/claude-sched", "--config", "/etc/claude-sched.toml", "run", "ai-digest-0123abcd",
	}, u.Program)
	assert.Len(t, u.Entries, 5)
	assert.True(t, strings.HasSuffix(u.StdoutPath, filepath.Join("triggers", u.Label+".out.log")))
}

func TestLaunchd_Render(t *testing.T) {
	m := newTestManager(t, "launchd", &fakeRunner{})
	files, err := m.Backend().Render(m.Compile(digestSchedule(true)))
	require.NoError(t, err)

	data := string(files["com.test.schedule.ai-digest-0123abcd.plist"])
	require.NotEmpty(t, data)
	assert.Contains(t, data, "<string>com.test.schedule.ai-digest-0123abcd</string>")
	assert.Contains(t, data, "<key>StartCalendarInterval</key>")
	assert.Equal(t, 5, strings.Count(data, "<key>Weekday</key>"))
	assert.Contains(t, data, "<integer>6</integer>")
	assert.Contains(t, data, "<string>run</string>")
	assert.Contains(t, data, "<string>/usr/bin:/bin</string>")
	assert.NotContains(t, data, "<key>Month</key>")
}

func TestLaunchd_RenderEscapes(t *testing.T) {
	m := newTestManager(t, "launchd", &fakeRunner{})
	u := m.Compile(digestSchedule(true))
	u.WorkDir = "/tmp/a&b"
	files, err := m.Backend().Render(u)
	require.NoError(t, err)
	assert.Contains(t, string(files[u.Label+".plist"]), "/tmp/a&amp;b")
}

func TestSystemd_Render(t *testing.T) {
	m := newTestManager(t, "systemd", &fakeRunner{})
	files, err := m.Backend().Render(m.Compile(digestSchedule(true)))
	require.NoError(t, err)

	svc := string(files["com.test.schedule.ai-digest-0123abcd.service"])
	timer := string(files["com.test.schedule.ai-digest-0123abcd.timer"])
	assert.Contains(t, svc, `ExecStart="/usr/local/bin/claude-sched" "--config" "/etc/claude-sched.toml" "run" "ai-digest-0123abcd"`)
	assert.Contains(t, svc, `Environment="PATH=/usr/bin:/bin"`)
	assert.Contains(t, timer, "OnCalendar=Mon *-*-* 06:00:00")
	assert.Contains(t, timer, "OnCalendar=Fri *-*-* 06:00:00")
	assert.Equal(t, 5, strings.Count(timer, "OnCalendar="))
}

func TestOnCalendar(t *testing.T) {
	assert.Equal(t, "*-*-* 06:00:00", OnCalendar(CalendarEntry{Hour: 6}))
	sun := 0
	assert.Equal(t, "Sun *-*-* 09:30:00", OnCalendar(CalendarEntry{Hour: 9, Minute: 30, Weekday: &sun}))
	at := time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC)
	assert.Equal(t, "*-10-19 09:15:00", OnCalendar(OneShotEntry(at)))
}

func TestManager_CheckRejectsInvalidUnit(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"plutil": errors.New("exit status 1")}}
	m := newTestManager(t, "launchd", runner)

	err := m.Check(context.Background(), digestSchedule(true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTriggerRegistration))
	assert.Equal(t, 1, runner.called("plutil -lint"))

	_, statErr := os.Stat(m.UnitPaths("ai-digest-0123abcd")[0])
	assert.True(t, os.IsNotExist(statErr), "check must not write into the unit dir")
}

func TestManager_CheckSkipsMissingValidator(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"systemd-analyze": &exec.Error{Name: "systemd-analyze", Err: exec.ErrNotFound}}}
	m := newTestManager(t, "systemd", runner)

	assert.NoError(t, m.Check(context.Background(), digestSchedule(true)))
}

func TestManager_SyncEnabledRegisters(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, "launchd", runner)

	warnings := m.Sync(context.Background(), digestSchedule(true))
	assert.Empty(t, warnings)

	for _, p := range m.UnitPaths("ai-digest-0123abcd") {
		assert.FileExists(t, p)
	}
	assert.Equal(t, 1, runner.called("launchctl load"))
	assert.Equal(t, 0, runner.called("launchctl unload"))

	// second sync unloads the existing unit first
	m.Sync(context.Background(), digestSchedule(true))
	assert.Equal(t, 1, runner.called("launchctl unload"))
	assert.Equal(t, 2, runner.called("launchctl load"))
}

func TestManager_SyncDisabledWritesButDoesNotLoad(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, "systemd", runner)

	warnings := m.Sync(context.Background(), digestSchedule(false))
	assert.Empty(t, warnings)
	for _, p := range m.UnitPaths("ai-digest-0123abcd") {
		assert.FileExists(t, p)
	}
	assert.Equal(t, 0, runner.called("systemctl --user enable"))
}

func TestManager_SyncRegistrationFailureIsWarning(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"launchctl load": errors.New("exit status 5")}}
	m := newTestManager(t, "launchd", runner)

	warnings := m.Sync(context.Background(), digestSchedule(true))
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "registering trigger")
}

func TestManager_RetryLifecycle(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, "launchd", runner)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 9, 15, 0, 0, time.Local)

	require.NoError(t, m.ScheduleRetry(ctx, "ai-digest-0123abcd", 1, at))
	require.NoError(t, m.ScheduleRetry(ctx, "ai-digest-0123abcd", 2, at.Add(15*time.Minute)))

	labels, err := m.RetryLabels("ai-digest-0123abcd")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"com.test.retry.ai-digest-0123abcd.1",
		"com.test.retry.ai-digest-0123abcd.2",
	}, labels)

	data, err := os.ReadFile(filepath.Join(m.opts.UnitDir, labels[0]+".plist"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<string>--retry</string>")
	assert.Contains(t, string(data), "<key>Month</key>")

	require.NoError(t, m.ClearRetry(ctx, "ai-digest-0123abcd"))
	labels, err = m.RetryLabels("ai-digest-0123abcd")
	require.NoError(t, err)
	assert.Empty(t, labels)
	assert.Equal(t, 2, runner.called("launchctl unload"))
}

func TestManager_RemoveDeletesAllUnits(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, "systemd", runner)
	ctx := context.Background()

	m.Sync(ctx, digestSchedule(true))
	require.NoError(t, m.ScheduleRetry(ctx, "ai-digest-0123abcd", 1, time.Now().Add(time.Hour)))

	warnings := m.Remove(ctx, "ai-digest-0123abcd")
	assert.Empty(t, warnings)
	for _, p := range m.UnitPaths("ai-digest-0123abcd") {
		assert.NoFileExists(t, p)
	}
	labels, err := m.RetryLabels("ai-digest-0123abcd")
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestManager_RegisterDisabled(t *testing.T) {
	runner := &fakeRunner{}
	backend, err := NewBackend("launchd", runner)
	require.NoError(t, err)
	m := NewManager(backend, Options{UnitDir: t.TempDir(), LogDir: t.TempDir(), Program: "x"}, nil)

	m.Sync(context.Background(), digestSchedule(true))
	require.NoError(t, m.ScheduleRetry(context.Background(), "ai-digest-0123abcd", 1, time.Now()))
	assert.Empty(t, runner.calls)
}
