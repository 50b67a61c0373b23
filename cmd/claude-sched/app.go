package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-sched/internal/catalog"
	"github.com/hochfrequenz/claude-sched/internal/config"
	"github.com/hochfrequenz/claude-sched/internal/controller"
	"github.com/hochfrequenz/claude-sched/internal/dashboard"
	"github.com/hochfrequenz/claude-sched/internal/effects"
	"github.com/hochfrequenz/claude-sched/internal/history"
	"github.com/hochfrequenz/claude-sched/internal/logging"
	"github.com/hochfrequenz/claude-sched/internal/notify"
	"github.com/hochfrequenz/claude-sched/internal/publish"
	"github.com/hochfrequenz/claude-sched/internal/runner"
	"github.com/hochfrequenz/claude-sched/internal/schedstore"
	"github.com/hochfrequenz/claude-sched/internal/trigger"
)

// effectsTimeout bounds how long a command waits for best-effort side effects
const effectsTimeout = 30 * time.Second

// app holds the components every command is built from
type app struct {
	cfg       *config.Config
	cfgPath   string
	log       *zap.SugaredLogger
	store     *schedstore.Store
	triggers  *trigger.Manager
	history   *history.Store
	dashboard *dashboard.Generator
}

func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

func newApp() (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return nil, err
	}

	backend, err := trigger.NewBackend(cfg.Trigger.Backend, nil)
	if err != nil {
		return nil, err
	}
	opts := trigger.Options{
		Namespace: cfg.Trigger.Namespace,
		UnitDir:   cfg.Trigger.UnitDir,
		Program:   cfg.Trigger.Program,
		LogDir:    cfg.General.LogDir,
		PathEnv:   cfg.Runner.Path,
		WorkDir:   cfg.Runner.WorkDir,
		Register:  cfg.Trigger.Register,
		Validate:  cfg.Trigger.Validate,
	}
	// units only carry --config when a non-default file was chosen
	if configPath != "" {
		opts.ConfigPath = path
	}

	hist, err := history.New(cfg.General.HistoryPath)
	if err != nil {
		return nil, err
	}

	store := schedstore.New(cfg.General.StorePath)
	return &app{
		cfg:       cfg,
		cfgPath:   path,
		log:       log,
		store:     store,
		triggers:  trigger.NewManager(backend, opts, log.Named("trigger")),
		history:   hist,
		dashboard: dashboard.NewGenerator(store, cfg.General.DashboardPath),
	}, nil
}

func (a *app) Close() {
	if a.history != nil {
		_ = a.history.Close()
	}
	_ = a.log.Sync()
}

func (a *app) catalog() *catalog.Service {
	return catalog.NewService(a.store, a.triggers, a.cfg.General.LogDir,
		catalog.WithDashboard(a.dashboard),
		catalog.WithHistory(a.history),
		catalog.WithLogger(a.log.Named("catalog")),
	)
}

func (a *app) notifier() notify.Notifier {
	return buildNotifier(a.cfg.Notifications)
}

// buildNotifier returns nil when no escalation target is configured
func buildNotifier(n config.NotificationsConfig) notify.Notifier {
	var targets []notify.Notifier
	if len(n.TrackerCommand) > 0 {
		targets = append(targets, notify.NewTrackerNotifier(n.TrackerCommand, n.TrackerProject, n.TrackerTags))
	}
	if n.Desktop {
		targets = append(targets, notify.NewDesktopNotifier(true))
	}
	if n.SlackWebhook != "" {
		targets = append(targets, notify.NewSlackNotifier(n.SlackWebhook))
	}
	multi := notify.NewMultiNotifier(targets...)
	if multi.Len() == 0 {
		return nil
	}
	return multi
}

func (a *app) controller(fx *effects.Dispatcher) *controller.Controller {
	r := a.cfg.Runner
	return controller.New(controller.Deps{
		Store: a.store,
		Invoker: &runner.ClaudeRunner{
			Binary:    r.Binary,
			WorkDir:   r.WorkDir,
			PathEnv:   r.Path,
			Timeout:   time.Duration(r.TimeoutMinutes) * time.Minute,
			ExtraArgs: r.ExtraArgs,
		},
		Retries:   a.triggers,
		Notifier:  a.notifier(),
		History:   a.history,
		Dashboard: a.dashboard,
		Publisher: publish.New(a.cfg.Output.VaultPath),
		Effects:   fx,
		LogRoot:   a.cfg.General.LogDir,
		Logger:    a.log.Named("controller"),
	})
}
