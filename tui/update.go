package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// rows of chrome around the schedule list (header, borders, detail pane, status bar)
const chromeRows = 14

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadCmd()
		case "j", "down":
			if m.selected < len(m.schedules)-1 {
				m.selected++
			}
			if visible := m.visibleRows(); m.selected >= m.scroll+visible {
				m.scroll = m.selected - visible + 1
			}
		case "k", "up":
			if m.selected > 0 {
				m.selected--
			}
			if m.selected < m.scroll {
				m.scroll = m.selected
			}
		case "g":
			m.selected, m.scroll = 0, 0
		case "G":
			if len(m.schedules) > 0 {
				m.selected = len(m.schedules) - 1
				if visible := m.visibleRows(); m.selected >= visible {
					m.scroll = m.selected - visible + 1
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.loadCmd(), tickCmd(m.interval))

	case LoadedMsg:
		m.lastRefresh = msg.At
		m.loadErr = msg.Err
		if msg.Err == nil {
			m.SetSchedules(msg.Schedules)
		}
	}

	return m, nil
}

// SetSchedules replaces the list and keeps the cursor in range
func (m *Model) SetSchedules(schedules []*domain.Schedule) {
	m.schedules = schedules
	if m.selected >= len(schedules) {
		m.selected = len(schedules) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	if m.scroll > m.selected {
		m.scroll = m.selected
	}
}

func (m Model) visibleRows() int {
	if m.height <= chromeRows {
		return 5
	}
	return m.height - chromeRows
}
