package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// DefaultRefreshInterval is how often the board reloads the store
const DefaultRefreshInterval = 5 * time.Second

// Loader reads the schedule catalog
type Loader interface {
	List(enabledOnly bool) ([]*domain.Schedule, error)
}

// Model is the TUI application model
type Model struct {
	// Data
	loader    Loader
	schedules []*domain.Schedule
	loadErr   error

	// UI state
	width    int
	height   int
	selected int
	scroll   int

	// Refresh
	interval    time.Duration
	lastRefresh time.Time
	now         func() time.Time
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Loader          Loader
	Schedules       []*domain.Schedule
	RefreshInterval time.Duration
	Now             func() time.Time
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return Model{
		loader:    cfg.Loader,
		schedules: cfg.Schedules,
		interval:  interval,
		now:       now,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadCmd(),
		tickCmd(m.interval),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

// LoadedMsg carries a fresh read of the store
type LoadedMsg struct {
	Schedules []*domain.Schedule
	Err       error
	At        time.Time
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) loadCmd() tea.Cmd {
	if m.loader == nil {
		return nil
	}
	loader, now := m.loader, m.now
	return func() tea.Msg {
		schedules, err := loader.List(false)
		return LoadedMsg{Schedules: schedules, Err: err, At: now()}
	}
}

// Selected returns the schedule under the cursor, or nil
func (m Model) Selected() *domain.Schedule {
	if m.selected < 0 || m.selected >= len(m.schedules) {
		return nil
	}
	return m.schedules[m.selected]
}
