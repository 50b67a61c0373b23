package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-sched/internal/dashboard"
	"github.com/hochfrequenz/claude-sched/internal/domain"
	"github.com/hochfrequenz/claude-sched/internal/execlog"
	"github.com/hochfrequenz/claude-sched/internal/history"
	"github.com/hochfrequenz/claude-sched/tui"
)

var (
	logsDate string

	historyLimit int

	rotateKeepMonths int
	rotateDryRun     bool

	dashboardWatch bool
)

func init() {
	// logs command
	logsCmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Show the execution log of a schedule",
		Args:  exactArgs(1),
		RunE:  runLogs,
	}
	logsCmd.Flags().StringVar(&logsDate, "date", "", "day to show (YYYY-MM-DD, default: latest)")
	rootCmd.AddCommand(logsCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history [ID]",
		Short: "List recorded run outcomes",
		Args:  maximumArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows")
	rootCmd.AddCommand(historyCmd)

	// rotate-logs command
	rotateCmd := &cobra.Command{
		Use:   "rotate-logs",
		Short: "Delete execution log partitions older than the retention window",
		Args:  exactArgs(0),
		RunE:  runRotateLogs,
	}
	rotateCmd.Flags().IntVar(&rotateKeepMonths, "keep-months", 0, "months to keep (default from config)")
	rotateCmd.Flags().BoolVar(&rotateDryRun, "dry-run", false, "report what would be deleted")
	rootCmd.AddCommand(rotateCmd)

	// dashboard command
	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Regenerate the dashboard document",
		Args:  exactArgs(0),
		RunE:  runDashboard,
	}
	dashboardCmd.Flags().BoolVar(&dashboardWatch, "watch", false, "keep regenerating when the store changes")
	rootCmd.AddCommand(dashboardCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch TUI status board",
		Args:  exactArgs(0),
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id := args[0]
	root := a.cfg.General.LogDir

	var path string
	if logsDate != "" {
		day, err := time.ParseInLocation("2006-01-02", logsDate, time.Local)
		if err != nil {
			return domain.Validationf("--date must be YYYY-MM-DD, got %q", logsDate)
		}
		path = execlog.PathFor(root, id, day)
	} else {
		files, err := execlog.FilesFor(root, id)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			if _, err := a.store.Get(id); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), success(map[string]any{
				"schedule_id": id,
				"entries":     []execlog.Entry{},
			}))
		}
		path = files[len(files)-1]
	}

	entries, err := execlog.Read(path)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), success(map[string]any{
		"schedule_id": id,
		"file":        path,
		"entries":     entries,
	}))
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := history.ListOptions{Limit: historyLimit}
	if len(args) == 1 {
		opts.ScheduleID = args[0]
	}
	runs, err := a.history.ListRuns(opts)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []*history.Run{}
	}
	return writeJSON(cmd.OutOrStdout(), success(map[string]any{
		"count": len(runs),
		"runs":  runs,
	}))
}

func runRotateLogs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	keep := rotateKeepMonths
	if !cmd.Flags().Changed("keep-months") {
		keep = a.cfg.Logging.KeepMonths
	}
	if keep < 1 {
		return domain.Validationf("--keep-months must be at least 1")
	}

	report, err := execlog.Rotate(a.cfg.General.LogDir, keep, time.Now(), rotateDryRun)
	if err != nil {
		return err
	}
	a.log.Infow("Rotated execution logs", "cutoff", report.Cutoff, "partitions", len(report.Partitions), "dry_run", rotateDryRun)
	return writeJSON(cmd.OutOrStdout(), success(map[string]any{
		"report": report,
	}))
}

func runDashboard(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if dashboardWatch {
		a.log.Infow("Watching schedule store", "store", a.store.Path(), "dashboard", a.dashboard.Path())
		return dashboard.NewWatcher(a.dashboard, a.store.Path(), a.log.Named("dashboard")).Run(cmd.Context())
	}

	if err := a.dashboard.Refresh(cmd.Context()); err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), success(map[string]any{
		"path": a.dashboard.Path(),
	}))
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.NewModel(tui.ModelConfig{Loader: a.store})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}
