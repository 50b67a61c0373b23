package trigger

import (
	"bytes"
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"text/template"

	"github.com/cockroachdb/errors"
)

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{xml .Label}}</string>
	<key>ProgramArguments</key>
	<array>
{{- range .Program}}
		<string>{{xml .}}</string>
{{- end}}
	</array>
	<key>StartCalendarInterval</key>
	<array>
{{- range .Entries}}
		<dict>
{{- if .Month}}
			<key>Month</key>
			<integer>{{.Month}}</integer>
{{- end}}
{{- if .Day}}
			<key>Day</key>
			<integer>{{.Day}}</integer>
{{- end}}
			<key>Hour</key>
			<integer>{{.Hour}}</integer>
			<key>Minute</key>
			<integer>{{.Minute}}</integer>
{{- if .HasWeekday}}
			<key>Weekday</key>
			<integer>{{.Weekday}}</integer>
{{- end}}
		</dict>
{{- end}}
	</array>
{{- if .PathEnv}}
	<key>EnvironmentVariables</key>
	<dict>
		<key>PATH</key>
		<string>{{xml .PathEnv}}</string>
	</dict>
{{- end}}
{{- if .WorkDir}}
	<key>WorkingDirectory</key>
	<string>{{xml .WorkDir}}</string>
{{- end}}
	<key>StandardOutPath</key>
	<string>{{xml .StdoutPath}}</string>
	<key>StandardErrorPath</key>
	<string>{{xml .StderrPath}}</string>
	<key>RunAtLoad</key>
	<false/>
</dict>
</plist>
`

var plist = template.Must(template.New("plist").Funcs(template.FuncMap{
	"xml": xmlEscape,
}).Parse(plistTemplate))

type plistEntry struct {
	Month, Day, Hour, Minute, Weekday int
	HasWeekday                        bool
}

type plistView struct {
	Unit
	Entries []plistEntry
}

// Launchd renders property lists for the macOS launchd agent scheduler
type Launchd struct {
	runner CommandRunner
}

func (l *Launchd) Name() string { return "launchd" }

func (l *Launchd) DefaultUnitDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents")
}

func (l *Launchd) Files(label string) []string {
	return []string{label + ".plist"}
}

func (l *Launchd) Render(u Unit) (map[string][]byte, error) {
	view := plistView{Unit: u}
	for _, e := range u.Entries {
		pe := plistEntry{Month: e.Month, Day: e.Day, Hour: e.Hour, Minute: e.Minute}
		if e.Weekday != nil {
			pe.HasWeekday = true
			pe.Weekday = *e.Weekday
		}
		view.Entries = append(view.Entries, pe)
	}

	var buf bytes.Buffer
	if err := plist.Execute(&buf, view); err != nil {
		return nil, errors.Wrapf(err, "rendering plist for %s", u.Label)
	}
	return map[string][]byte{u.Label + ".plist": buf.Bytes()}, nil
}

func (l *Launchd) Validate(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := runTool(ctx, l.runner, "plutil", "-lint", p); err != nil {
			if isMissingTool(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (l *Launchd) Register(ctx context.Context, dir, label string) error {
	return runTool(ctx, l.runner, "launchctl", "load", filepath.Join(dir, label+".plist"))
}

func (l *Launchd) Unregister(ctx context.Context, dir, label string) error {
	return runTool(ctx, l.runner, "launchctl", "unload", filepath.Join(dir, label+".plist"))
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
