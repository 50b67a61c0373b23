package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// TrackerTask is the JSON document handed to the task tracker command
type TrackerTask struct {
	Name    string   `json:"name"`
	Project string   `json:"project"`
	Tags    []string `json:"tags"`
	Note    string   `json:"note"`
	Flagged bool     `json:"flagged"`
	DueDate string   `json:"dueDate"`
}

// TrackerNotifier creates a follow-up task in the operator's task tracker by
// piping a TrackerTask to an external command.
type TrackerNotifier struct {
	command []string
	project string
	tags    []string
	timeout time.Duration
}

// NewTrackerNotifier creates a tracker notifier. An empty command disables it.
func NewTrackerNotifier(command []string, project string, tags []string) *TrackerNotifier {
	return &TrackerNotifier{
		command: command,
		project: project,
		tags:    tags,
		timeout: 30 * time.Second,
	}
}

// Task builds the tracker payload for a notification
func (t *TrackerNotifier) Task(n Notification) TrackerTask {
	at := n.At
	if at.IsZero() {
		at = time.Now()
	}
	tags := t.tags
	if tags == nil {
		tags = []string{}
	}
	return TrackerTask{
		Name:    n.Title,
		Project: t.project,
		Tags:    tags,
		Note:    n.Message,
		Flagged: n.Type == NotifyError,
		DueDate: at.Format("2006-01-02"),
	}
}

// Send runs the tracker command with the task JSON on stdin
func (t *TrackerNotifier) Send(ctx context.Context, n Notification) error {
	if len(t.command) == 0 {
		return nil
	}

	payload, err := json.Marshal(t.Task(n))
	if err != nil {
		return errors.Wrap(err, "encoding tracker task")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.command[0], t.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "tracker command %s: %s", t.command[0], strings.TrimSpace(stderr.String()))
	}
	return nil
}
