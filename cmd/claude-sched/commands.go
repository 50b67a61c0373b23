package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hochfrequenz/claude-sched/internal/catalog"
	"github.com/hochfrequenz/claude-sched/internal/controller"
	"github.com/hochfrequenz/claude-sched/internal/dashboard"
	"github.com/hochfrequenz/claude-sched/internal/domain"
	"github.com/hochfrequenz/claude-sched/internal/effects"
)

// scheduleFlags are shared by create and update
type scheduleFlags struct {
	name            string
	description     string
	prompt          string
	schedule        string
	tools           string
	missedRun       string
	maxRetries      int
	retryInterval   int
	enabled         string
	obsidianFolder  string
	notifyOnFailure string
}

func (f *scheduleFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "schedule name")
	fs.StringVar(&f.description, "description", "", "free-form description")
	fs.StringVar(&f.prompt, "prompt", "", "prompt passed to claude -p")
	fs.StringVar(&f.schedule, "schedule", "", `when to run, e.g. "6:00 weekdays" or "9:15 tue"`)
	fs.StringVar(&f.tools, "tools", "", "comma separated allowed tools")
	fs.StringVar(&f.missedRun, "missed-run", "skip", "failure policy: skip, catch-up or retry")
	fs.IntVar(&f.maxRetries, "max-retries", domain.DefaultMaxRetries, "retry attempts for the retry policy")
	fs.IntVar(&f.retryInterval, "retry-interval", domain.DefaultRetryIntervalMinutes, "minutes between retries")
	fs.StringVar(&f.enabled, "enabled", "true", "register the trigger (true|false)")
	fs.StringVar(&f.obsidianFolder, "obsidian-folder", "", "publish successful output to this vault folder")
	fs.StringVar(&f.notifyOnFailure, "notify-on-failure", "true", "escalate terminal failures (true|false)")
}

func parseBoolFlag(name, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, domain.Validationf("--%s must be true or false, got %q", name, value)
	}
	return b, nil
}

var (
	createFlags scheduleFlags
	updateFlags scheduleFlags

	deleteKeepLogs bool

	listJSON        bool
	listEnabledOnly bool

	runRetry bool
)

func init() {
	// create command
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a schedule and register its trigger",
		Args:  exactArgs(0),
		RunE:  runCreate,
	}
	createFlags.register(createCmd.Flags())
	rootCmd.AddCommand(createCmd)

	// update command
	updateCmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a schedule",
		Args:  exactArgs(1),
		RunE:  runUpdate,
	}
	updateFlags.register(updateCmd.Flags())
	rootCmd.AddCommand(updateCmd)

	// delete command
	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule, its trigger and its logs",
		Args:  exactArgs(1),
		RunE:  runDelete,
	}
	deleteCmd.Flags().BoolVar(&deleteKeepLogs, "keep-logs", false, "keep execution logs and run history")
	rootCmd.AddCommand(deleteCmd)

	// list command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  exactArgs(0),
		RunE:  runList,
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON instead of a table")
	listCmd.Flags().BoolVar(&listEnabledOnly, "enabled-only", false, "only enabled schedules")
	rootCmd.AddCommand(listCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run ID",
		Short: "Execute a schedule now (invoked by the OS trigger)",
		Args:  exactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().BoolVar(&runRetry, "retry", false, "this fire is a retry attempt")
	rootCmd.AddCommand(runCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f := createFlags
	in := catalog.CreateInput{
		Name:           f.name,
		Description:    f.description,
		Prompt:         f.prompt,
		Schedule:       f.schedule,
		Tools:          f.tools,
		MissedRun:      f.missedRun,
		MaxRetries:     &f.maxRetries,
		RetryInterval:  &f.retryInterval,
		ObsidianFolder: f.obsidianFolder,
	}
	enabled, err := parseBoolFlag("enabled", f.enabled)
	if err != nil {
		return err
	}
	notifyOnFailure, err := parseBoolFlag("notify-on-failure", f.notifyOnFailure)
	if err != nil {
		return err
	}
	in.Enabled = &enabled
	in.NotifyOnFailure = &notifyOnFailure

	res, err := a.catalog().Create(cmd.Context(), in)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), success(map[string]any{
		"id":       res.Schedule.ID,
		"schedule": res.Schedule,
		"warnings": res.Warnings,
	}))
}

// updateInput maps the flags the user actually set onto an UpdateInput
func updateInput(fs *pflag.FlagSet, f *scheduleFlags) (catalog.UpdateInput, error) {
	var in catalog.UpdateInput
	str := func(name string, v *string) *string {
		if fs.Changed(name) {
			return v
		}
		return nil
	}
	in.Name = str("name", &f.name)
	in.Description = str("description", &f.description)
	in.Prompt = str("prompt", &f.prompt)
	in.Schedule = str("schedule", &f.schedule)
	in.Tools = str("tools", &f.tools)
	in.MissedRun = str("missed-run", &f.missedRun)
	in.ObsidianFolder = str("obsidian-folder", &f.obsidianFolder)
	if fs.Changed("max-retries") {
		in.MaxRetries = &f.maxRetries
	}
	if fs.Changed("retry-interval") {
		in.RetryInterval = &f.retryInterval
	}
	if fs.Changed("enabled") {
		b, err := parseBoolFlag("enabled", f.enabled)
		if err != nil {
			return in, err
		}
		in.Enabled = &b
	}
	if fs.Changed("notify-on-failure") {
		b, err := parseBoolFlag("notify-on-failure", f.notifyOnFailure)
		if err != nil {
			return in, err
		}
		in.NotifyOnFailure = &b
	}
	return in, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	in, err := updateInput(cmd.Flags(), &updateFlags)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.catalog().Update(cmd.Context(), args[0], in)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), success(map[string]any{
		"id":       res.Schedule.ID,
		"schedule": res.Schedule,
		"warnings": res.Warnings,
	}))
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.catalog().Delete(cmd.Context(), args[0], deleteKeepLogs)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), success(map[string]any{
		"id":           res.ID,
		"name":         res.Name,
		"logs_deleted": res.LogsDeleted,
		"kept_logs":    res.KeptLogs,
		"warnings":     res.Warnings,
	}))
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	schedules, err := a.catalog().List(listEnabledOnly)
	if err != nil {
		return err
	}
	if listJSON {
		if schedules == nil {
			schedules = []*domain.Schedule{}
		}
		return writeJSON(cmd.OutOrStdout(), success(map[string]any{
			"count":     len(schedules),
			"schedules": schedules,
		}))
	}
	return writeTable(cmd.OutOrStdout(), schedules, time.Now())
}

var (
	headerCell   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	bodyCell     = lipgloss.NewStyle().Padding(0, 1)
	disabledCell = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	failedCell   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
)

func writeTable(w io.Writer, schedules []*domain.Schedule, now time.Time) error {
	if len(schedules) == 0 {
		_, err := fmt.Fprintln(w, "No schedules.")
		return err
	}

	rows := make([][]string, 0, len(schedules))
	for _, s := range schedules {
		rows = append(rows, listRow(s, now))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "NAME", "SCHEDULE", "ENABLED", "NEXT RUN", "LAST RUN").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerCell
			case !schedules[row].Enabled:
				return disabledCell
			case col == 5 && schedules[row].LastRun != nil && schedules[row].LastRun.Status == domain.StatusFailed:
				return failedCell
			default:
				return bodyCell
			}
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func listRow(s *domain.Schedule, now time.Time) []string {
	enabled := "yes"
	next := "-"
	if s.Enabled {
		if _, rel := dashboard.NextRun(s, now); rel != "" {
			next = rel
		}
	} else {
		enabled = "no"
	}
	last := "never"
	if s.LastRun != nil {
		last = fmt.Sprintf("%s (%s)", s.LastRun.Status, humanize.RelTime(s.LastRun.Timestamp, now, "ago", "from now"))
	}
	return []string{s.ID, s.Name, s.Schedule.Expression, enabled, next, last}
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fx := effects.New(a.log.Named("effects"))
	out, runErr := a.controller(fx).Run(cmd.Context(), args[0], controller.RunOptions{Retry: runRetry})
	failedEffects := fx.Wait(effectsTimeout)
	if runErr != nil {
		return runErr
	}

	if err := writeJSON(cmd.OutOrStdout(), map[string]any{
		"success":        out.OK(),
		"outcome":        out,
		"failed_effects": failedEffects,
	}); err != nil {
		return errors.Wrap(err, "writing outcome")
	}
	if !out.OK() {
		return &exitStatus{code: 1}
	}
	return nil
}
