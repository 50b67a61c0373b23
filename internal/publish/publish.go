// Package publish writes successful run output into a markdown notes vault.
package publish

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
	"github.com/hochfrequenz/claude-sched/internal/frontmatter"
)

// Note is the output of one successful run
type Note struct {
	ScheduleID   string
	ScheduleName string
	Folder       string
	RunAt        time.Time
	Duration     time.Duration
	Output       string
}

type noteMeta struct {
	ScheduleID      string   `yaml:"schedule_id"`
	Schedule        string   `yaml:"schedule"`
	RunAt           string   `yaml:"run_at"`
	DurationSeconds float64  `yaml:"duration_seconds"`
	Tags            []string `yaml:"tags"`
}

// Publisher writes notes below a vault root
type Publisher struct {
	vault string
}

// New creates a Publisher rooted at vault
func New(vault string) *Publisher {
	return &Publisher{vault: vault}
}

// Dir resolves the folder a note is written to. Absolute folders are used
// as-is; relative folders live under the vault.
func (p *Publisher) Dir(folder string) (string, error) {
	if folder == "" {
		return "", domain.Validationf("no output folder configured")
	}
	if filepath.IsAbs(folder) {
		return folder, nil
	}
	if p.vault == "" {
		return "", domain.Validationf("output folder %q is relative but no vault_path is configured", folder)
	}
	return filepath.Join(p.vault, folder), nil
}

// Publish writes the note and returns its path
func (p *Publisher) Publish(n Note) (string, error) {
	dir, err := p.Dir(n.Folder)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating %s", dir)
	}

	meta := noteMeta{
		ScheduleID:      n.ScheduleID,
		Schedule:        n.ScheduleName,
		RunAt:           n.RunAt.Format(time.RFC3339),
		DurationSeconds: n.Duration.Round(time.Millisecond).Seconds(),
		Tags:            []string{"claude-sched", n.ScheduleID},
	}
	body := "# " + n.ScheduleName + "\n\n" + strings.TrimSpace(n.Output) + "\n"
	content, err := frontmatter.Render(meta, []byte(body))
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(n.RunAt, n.ScheduleName))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing note %s", path)
	}
	return path, nil
}

// FileName is "<YYYY-MM-DD HHMM> <name>.md" with path separators removed
func FileName(at time.Time, name string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "run"
	}
	return at.Format("2006-01-02 1504") + " " + clean + ".md"
}
