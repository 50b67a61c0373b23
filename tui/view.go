package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/claude-sched/internal/dashboard"
	"github.com/hochfrequenz/claude-sched/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39"))

	selectedStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("237")).
		Foreground(lipgloss.Color("205"))

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	now := m.now()

	active := 0
	failing := 0
	for _, s := range m.schedules {
		if s.Enabled {
			active++
		}
		if s.LastRun != nil && s.LastRun.Status == domain.StatusFailed {
			failing++
		}
	}
	header := fmt.Sprintf(" claude-sched │ Schedules: %d │ Active: %d │ Failing: %d ", len(m.schedules), active, failing)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderSchedules(now)))
	b.WriteString("\n")

	if s := m.Selected(); s != nil {
		b.WriteString(sectionStyle.Width(m.width - 2).Render(renderDetail(s, now)))
		b.WriteString("\n")
	}

	if m.loadErr != nil {
		b.WriteString(warningStyle.Width(m.width).Render(" Error: " + m.loadErr.Error()))
		b.WriteString("\n")
	}

	refreshed := "never"
	if !m.lastRefresh.IsZero() {
		refreshed = humanize.RelTime(m.lastRefresh, now, "ago", "from now")
	}
	statusBar := fmt.Sprintf(" [j/k]move [g/G]top/bottom [r]efresh [q]uit │ refreshed %s ", refreshed)
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) renderSchedules(now time.Time) string {
	if len(m.schedules) == 0 {
		return dimmedStyle.Render("No schedules. Create one with: claude-sched create")
	}

	var b strings.Builder
	b.WriteString(columnStyle.Render(fmt.Sprintf("  %-28s %-18s %-8s %-30s %s", "NAME", "SCHEDULE", "ENABLED", "NEXT RUN", "LAST RUN")))
	b.WriteString("\n")

	end := m.scroll + m.visibleRows()
	if end > len(m.schedules) {
		end = len(m.schedules)
	}
	for i := m.scroll; i < end; i++ {
		s := m.schedules[i]
		line := fmt.Sprintf("%-28s %-18s %-8s %-30s ",
			truncate(s.Name, 28), truncate(s.Schedule.Expression, 18), enabledLabel(s), truncate(nextRun(s, now), 30))

		switch {
		case i == m.selected:
			b.WriteString(selectedStyle.Render("> " + line + lastRun(s, now)))
		case !s.Enabled:
			b.WriteString(dimmedStyle.Render("  " + line + lastRun(s, now)))
		default:
			b.WriteString("  " + line + styledLastRun(s, now))
		}
		b.WriteString("\n")
	}
	if end < len(m.schedules) {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("  … %d more", len(m.schedules)-end)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDetail(s *domain.Schedule, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", columnStyle.Render(s.Name), dimmedStyle.Render(s.ID))
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n", s.Description)
	}
	fmt.Fprintf(&b, "Prompt:  %s\n", truncate(strings.ReplaceAll(s.Task.Prompt, "\n", " "), 100))
	fmt.Fprintf(&b, "Tools:   %s\n", strings.Join(s.Task.AllowedTools, ", "))
	policy := string(s.MissedRunPolicy.Action)
	if s.MissedRunPolicy.Action == domain.ActionRetry {
		policy += fmt.Sprintf(" (max %d, every %dm)", s.MissedRunPolicy.MaxRetries, s.MissedRunPolicy.RetryIntervalMinutes)
	}
	fmt.Fprintf(&b, "Policy:  %s\n", policy)
	if s.NextRetryAt != nil {
		fmt.Fprintf(&b, "%s\n", warningStyle.Render(fmt.Sprintf("Retry %d/%d %s",
			s.RetryCount, s.MissedRunPolicy.MaxRetries, humanize.RelTime(*s.NextRetryAt, now, "ago", "from now"))))
	}
	if s.LastRun != nil {
		fmt.Fprintf(&b, "Log:     %s", s.LastRun.LogFile)
	} else {
		b.WriteString("Log:     -")
	}
	return b.String()
}

func enabledLabel(s *domain.Schedule) string {
	if s.Enabled {
		return "yes"
	}
	return "no"
}

func nextRun(s *domain.Schedule, now time.Time) string {
	if !s.Enabled {
		return "-"
	}
	next, _ := dashboard.NextRun(s, now)
	if next.IsZero() {
		return "unknown"
	}
	return humanize.RelTime(next, now, "ago", "from now")
}

func lastRun(s *domain.Schedule, now time.Time) string {
	if s.LastRun == nil {
		return "never"
	}
	return fmt.Sprintf("%s %s", s.LastRun.Status, humanize.RelTime(s.LastRun.Timestamp, now, "ago", "from now"))
}

func styledLastRun(s *domain.Schedule, now time.Time) string {
	text := lastRun(s, now)
	switch {
	case s.LastRun == nil:
		return dimmedStyle.Render(text)
	case s.LastRun.Status == domain.StatusFailed:
		return failedStyle.Render(text)
	default:
		return completedStyle.Render(text)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
