// Package tui renders the contributor activity dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/utsikt/internal/app"
	"github.com/hylla/utsikt/internal/domain"
)

// Service represents the app-layer surface the dashboard reads from.
type Service interface {
	ListViews(context.Context) ([]domain.View, error)
	People(context.Context, string) ([]app.UserActivity, error)
}

// loadedMsg carries one dashboard refresh.
type loadedMsg struct {
	views    []domain.View
	selected int
	people   []app.UserActivity
	err      error
}

// Model represents model data used by this package.
type Model struct {
	svc  Service
	keys keyMap
	help help.Model
	now  func() time.Time

	ready       bool
	width       int
	height      int
	views       []domain.View
	selected    int
	people      []app.UserActivity
	selectedRow int
	status      string
	err         error
}

// Option defines a functional option for model configuration.
type Option func(*Model)

// WithClock overrides the wall clock used for age rendering.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// NewModel constructs the dashboard model.
func NewModel(svc Service, opts ...Option) Model {
	m := Model{
		svc:    svc,
		keys:   newKeyMap(),
		help:   help.New(),
		now:    time.Now,
		status: "loading...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// loadData refreshes the view list and the selected view's people index.
func (m Model) loadData() tea.Msg {
	ctx := context.Background()
	views, err := m.svc.ListViews(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	selected := clamp(m.selected, 0, len(views)-1)
	var people []app.UserActivity
	if len(views) > 0 {
		people, err = m.svc.People(ctx, views[selected].Name)
		if err != nil {
			return loadedMsg{err: err}
		}
	}
	return loadedMsg{views: views, selected: selected, people: people}
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.views = msg.views
		m.selected = msg.selected
		m.people = msg.people
		m.selectedRow = clamp(m.selectedRow, 0, len(m.people)-1)
		if len(m.views) == 0 {
			m.status = "no views"
		} else {
			m.status = "ready"
		}
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	default:
		return m, nil
	}
}

// handleKey processes one key press in normal mode.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		m.status = "loading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.prevView):
		if len(m.views) > 1 {
			m.selected = (m.selected - 1 + len(m.views)) % len(m.views)
			m.selectedRow = 0
			m.status = "loading..."
			return m, m.loadData
		}
		return m, nil
	case key.Matches(msg, m.keys.nextView):
		if len(m.views) > 1 {
			m.selected = (m.selected + 1) % len(m.views)
			m.selectedRow = 0
			m.status = "loading..."
			return m, m.loadData
		}
		return m, nil
	case key.Matches(msg, m.keys.rowUp):
		m.selectedRow = clamp(m.selectedRow-1, 0, len(m.people)-1)
		return m, nil
	case key.Matches(msg, m.keys.rowDown):
		m.selectedRow = clamp(m.selectedRow+1, 0, len(m.people)-1)
		return m, nil
	default:
		return m, nil
	}
}

// View handles view.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

// render produces the full dashboard frame as text.
func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	tabStyle := lipgloss.NewStyle().Foreground(muted).Padding(0, 1)
	activeTabStyle := lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	rowStyle := lipgloss.NewStyle().Foreground(muted)

	sections := []string{titleStyle.Render("utsikt • people")}

	if len(m.views) == 0 {
		sections = append(sections, "", "No views yet.")
	} else {
		tabs := make([]string, 0, len(m.views))
		for i, view := range m.views {
			if i == m.selected {
				tabs = append(tabs, activeTabStyle.Render(view.DisplayName()))
				continue
			}
			tabs = append(tabs, tabStyle.Render(view.DisplayName()))
		}
		sections = append(sections, strings.Join(tabs, ""), "")
		if len(m.people) == 0 {
			sections = append(sections, "No recorded changes in this view.")
		} else {
			for i, row := range m.people {
				line := fmt.Sprintf("%-20s %-24s %s", row.User, row.Job, renderAge(row.LastChange, m.now()))
				if i == m.selectedRow {
					sections = append(sections, selectedStyle.Render("> "+line))
					continue
				}
				sections = append(sections, rowStyle.Render("  "+line))
			}
		}
	}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, "", m.status)
	}

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	return strings.Join(sections, "\n") + "\n" + helpLine
}

// renderAge formats the elapsed time since a change in coarse units.
func renderAge(when, now time.Time) string {
	if when.IsZero() {
		return "never"
	}
	elapsed := now.Sub(when)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	}
}

// clamp bounds v into [lo, hi]; hi below lo collapses to lo.
func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
