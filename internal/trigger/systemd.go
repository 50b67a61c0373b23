package trigger

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"
)

const serviceTemplate = `[Unit]
Description=claude-sched job {{.Label}}

[Service]
Type=oneshot
ExecStart={{execLine .Program}}
{{- if .WorkDir}}
WorkingDirectory={{.WorkDir}}
{{- end}}
{{- if .PathEnv}}
Environment="PATH={{.PathEnv}}"
{{- end}}
StandardOutput=append:{{.StdoutPath}}
StandardError=append:{{.StderrPath}}
`

const timerTemplate = `[Unit]
Description=Timer for {{.Label}}

[Timer]
{{- range .Calendars}}
OnCalendar={{.}}
{{- end}}
Unit={{.Label}}.service
Persistent=false

[Install]
WantedBy=timers.target
`

var (
	serviceUnit = template.Must(template.New("service").Funcs(template.FuncMap{
		"execLine": execLine,
	}).Parse(serviceTemplate))
	timerUnit = template.Must(template.New("timer").Parse(timerTemplate))
)

var systemdDays = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

type timerView struct {
	Label     string
	Calendars []string
}

// Systemd renders user service and timer units
type Systemd struct {
	runner CommandRunner
}

func (s *Systemd) Name() string { return "systemd" }

func (s *Systemd) DefaultUnitDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user")
}

func (s *Systemd) Files(label string) []string {
	return []string{label + ".service", label + ".timer"}
}

func (s *Systemd) Render(u Unit) (map[string][]byte, error) {
	var svc bytes.Buffer
	if err := serviceUnit.Execute(&svc, u); err != nil {
		return nil, errors.Wrapf(err, "rendering service unit for %s", u.Label)
	}

	view := timerView{Label: u.Label}
	for _, e := range u.Entries {
		view.Calendars = append(view.Calendars, OnCalendar(e))
	}
	var tmr bytes.Buffer
	if err := timerUnit.Execute(&tmr, view); err != nil {
		return nil, errors.Wrapf(err, "rendering timer unit for %s", u.Label)
	}

	return map[string][]byte{
		u.Label + ".service": svc.Bytes(),
		u.Label + ".timer":   tmr.Bytes(),
	}, nil
}

func (s *Systemd) Validate(ctx context.Context, paths []string) error {
	args := append([]string{"--user", "verify"}, paths...)
	if err := runTool(ctx, s.runner, "systemd-analyze", args...); err != nil {
		if isMissingTool(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Systemd) Register(ctx context.Context, dir, label string) error {
	if err := runTool(ctx, s.runner, "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return runTool(ctx, s.runner, "systemctl", "--user", "enable", "--now", label+".timer")
}

func (s *Systemd) Unregister(ctx context.Context, dir, label string) error {
	return runTool(ctx, s.runner, "systemctl", "--user", "disable", "--now", label+".timer")
}

// OnCalendar renders a calendar entry as a systemd calendar event
func OnCalendar(e CalendarEntry) string {
	date := "*-*-*"
	if e.Month > 0 && e.Day > 0 {
		date = fmt.Sprintf("*-%02d-%02d", e.Month, e.Day)
	}
	event := fmt.Sprintf("%s %02d:%02d:00", date, e.Hour, e.Minute)
	if e.Weekday != nil {
		event = systemdDays[*e.Weekday%7] + " " + event
	}
	return event
}

// execLine quotes arguments for an ExecStart= line
func execLine(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, `\`, `\\`)
		a = strings.ReplaceAll(a, `"`, `\"`)
		a = strings.ReplaceAll(a, "%", "%%")
		quoted[i] = `"` + a + `"`
	}
	return strings.Join(quoted, " ")
}
