package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "AI Digest failed",
		Attachments: []SlackAttachment{
			{Color: "danger", Title: "ai-digest-0123abcd", Text: "exit code 1"},
		},
	}

	payload, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"color":"danger"`)
}

func TestSlackNotifier_Send(t *testing.T) {
	var got SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(context.Background(), RunFailed("digest", "AI Digest", "exit code 1", "/logs/x.jsonl", time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "AI Digest failed", got.Text)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "digest", got.Attachments[0].Title)
	assert.Equal(t, "danger", got.Attachments[0].Color)
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Send(context.Background(), Notification{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSlackNotifier_DisabledWithoutWebhook(t *testing.T) {
	assert.NoError(t, NewSlackNotifier("").Send(context.Background(), Notification{}))
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SlackColor(tt.typ))
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called, err: errors.New("offline")}
	mock3 := &mockNotifier{name: "mock3", calls: &called}

	multi := NewMultiNotifier(mock1, mock2, mock3)
	err := multi.Send(context.Background(), Notification{Title: "Test"})

	assert.Equal(t, []string{"mock1", "mock2", "mock3"}, called)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.Equal(t, 3, multi.Len())
}

func TestRunFailed(t *testing.T) {
	n := RunFailed("digest", "AI Digest", "exit code 1", "/logs/2026-10/19-digest.jsonl", time.Now())
	assert.Equal(t, "AI Digest failed", n.Title)
	assert.Equal(t, NotifyError, n.Type)
	assert.Contains(t, n.Message, "digest")
	assert.Contains(t, n.Message, "exit code 1")
	assert.Contains(t, n.Message, "/logs/2026-10/19-digest.jsonl")
}

func TestTrackerNotifier_Task(t *testing.T) {
	tracker := NewTrackerNotifier([]string{"cat"}, "Automation", []string{"claude-sched", "failed-run"})
	at := time.Date(2026, 10, 19, 6, 5, 0, 0, time.UTC)

	task := tracker.Task(RunFailed("digest", "AI Digest", "exit code 1", "", at))
	assert.Equal(t, TrackerTask{
		Name:    "AI Digest failed",
		Project: "Automation",
		Tags:    []string{"claude-sched", "failed-run"},
		Note:    "Schedule digest failed: exit code 1",
		Flagged: true,
		DueDate: "2026-10-19",
	}, task)
}

func TestTrackerNotifier_SendPipesJSON(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	out := filepath.Join(t.TempDir(), "task.json")
	tracker := NewTrackerNotifier([]string{"/bin/sh", "-c", "cat > " + out}, "Automation", nil)

	require.NoError(t, tracker.Send(context.Background(), RunFailed("digest", "AI Digest", "boom", "", time.Now())))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var task map[string]any
	require.NoError(t, json.Unmarshal(data, &task))
	for _, key := range []string{"name", "project", "tags", "note", "flagged", "dueDate"} {
		assert.Contains(t, task, key)
	}
	assert.Equal(t, true, task["flagged"])
}

func TestTrackerNotifier_CommandFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	tracker := NewTrackerNotifier([]string{"/bin/sh", "-c", "echo nope >&2; exit 2"}, "Automation", nil)
	err := tracker.Send(context.Background(), Notification{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestTrackerNotifier_DisabledWithoutCommand(t *testing.T) {
	assert.NoError(t, NewTrackerNotifier(nil, "", nil).Send(context.Background(), Notification{}))
}

func TestEscapeAppleScript(t *testing.T) {
	assert.Equal(t, `say \"hi\" \\ bye`, escapeAppleScript(`say "hi" \ bye`))
}

type mockNotifier struct {
	name  string
	calls *[]string
	err   error
}

func (m *mockNotifier) Send(_ context.Context, n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return m.err
}
