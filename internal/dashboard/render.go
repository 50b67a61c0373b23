// Package dashboard renders the schedule catalog into a markdown status
// document.
package dashboard

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/claude-sched/internal/domain"
	"github.com/hochfrequenz/claude-sched/internal/frontmatter"
	"github.com/hochfrequenz/claude-sched/internal/trigger"
)

// RecentRunsLimit is how many runs the Recent Runs table shows
const RecentRunsLimit = 10

const tableTime = "2006-01-02 15:04"

type meta struct {
	Updated  string   `yaml:"updated"`
	Total    int      `yaml:"total"`
	Active   int      `yaml:"active"`
	Disabled int      `yaml:"disabled"`
	Tags     []string `yaml:"tags"`
}

// RecentRun is a last_run projected for the Recent Runs table
type RecentRun struct {
	ScheduleID   string
	ScheduleName string
	Run          domain.LastRun
}

// Render produces the dashboard document for doc as of now. It has no side
// effects.
func Render(doc *domain.Document, now time.Time) ([]byte, error) {
	var schedules []*domain.Schedule
	if doc != nil {
		schedules = append(schedules, doc.Schedules...)
	}
	sort.SliceStable(schedules, func(i, j int) bool {
		return schedules[i].Created.Before(schedules[j].Created)
	})

	var active, disabled []*domain.Schedule
	for _, s := range schedules {
		if s.Enabled {
			active = append(active, s)
		} else {
			disabled = append(disabled, s)
		}
	}

	var body bytes.Buffer
	body.WriteString("# Scheduled Automations\n\n")

	body.WriteString("## Active\n\n")
	if len(active) == 0 {
		body.WriteString("_No active schedules._\n\n")
	} else {
		body.WriteString("| Name | ID | Schedule | Next Run | Last Run |\n")
		body.WriteString("|------|----|----------|----------|----------|\n")
		for _, s := range active {
			fmt.Fprintf(&body, "| %s | `%s` | %s | %s | %s |\n",
				cell(s.Name), s.ID, cell(s.Schedule.Expression), nextRun(s, now), lastRun(s, now))
		}
		body.WriteString("\n")
	}

	body.WriteString("## Disabled\n\n")
	if len(disabled) == 0 {
		body.WriteString("_No disabled schedules._\n\n")
	} else {
		body.WriteString("| Name | ID | Schedule | Last Run |\n")
		body.WriteString("|------|----|----------|----------|\n")
		for _, s := range disabled {
			fmt.Fprintf(&body, "| %s | `%s` | %s | %s |\n",
				cell(s.Name), s.ID, cell(s.Schedule.Expression), lastRun(s, now))
		}
		body.WriteString("\n")
	}

	body.WriteString("## Recent Runs\n\n")
	recent := RecentRuns(schedules, RecentRunsLimit)
	if len(recent) == 0 {
		body.WriteString("_No runs yet._\n")
	} else {
		body.WriteString("| Time | Schedule | Status | Duration |\n")
		body.WriteString("|------|----------|--------|----------|\n")
		for _, r := range recent {
			fmt.Fprintf(&body, "| %s | %s | %s | %s |\n",
				r.Run.Timestamp.Local().Format(tableTime), cell(r.ScheduleName), r.Run.Status,
				FormatDuration(float64(r.Run.DurationSeconds)))
		}
	}

	return frontmatter.Render(meta{
		Updated:  now.Format(time.RFC3339),
		Total:    len(schedules),
		Active:   len(active),
		Disabled: len(disabled),
		Tags:     []string{"claude-sched", "dashboard"},
	}, body.Bytes())
}

// RecentRuns returns the latest last_run of each schedule, newest first
func RecentRuns(schedules []*domain.Schedule, limit int) []RecentRun {
	var runs []RecentRun
	for _, s := range schedules {
		if s.LastRun == nil {
			continue
		}
		runs = append(runs, RecentRun{ScheduleID: s.ID, ScheduleName: s.Name, Run: *s.LastRun})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Run.Timestamp.After(runs[j].Run.Timestamp)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// NextRun formats the projected next fire of a schedule
func NextRun(s *domain.Schedule, now time.Time) (time.Time, string) {
	next, err := trigger.NextFire(s.Schedule.Interval, now)
	if err != nil || next.IsZero() {
		return time.Time{}, "unknown"
	}
	return next, next.Format(tableTime) + " (" + humanize.RelTime(next, now, "ago", "from now") + ")"
}

func nextRun(s *domain.Schedule, now time.Time) string {
	_, text := NextRun(s, now)
	if s.NextRetryAt != nil && s.NextRetryAt.After(now) {
		text += fmt.Sprintf(" · retry %d/%d %s", s.RetryCount, s.MissedRunPolicy.MaxRetries,
			humanize.RelTime(*s.NextRetryAt, now, "ago", "from now"))
	}
	return text
}

func lastRun(s *domain.Schedule, now time.Time) string {
	if s.LastRun == nil {
		return "never"
	}
	return string(s.LastRun.Status) + " (" + humanize.RelTime(s.LastRun.Timestamp, now, "ago", "from now") + ")"
}

// FormatDuration renders seconds as a short duration
func FormatDuration(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
