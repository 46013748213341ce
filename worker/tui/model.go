package tui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mangatint/worker/batch"
)

// ProgressUpdate is one frame of job state for the terminal UI. Either
// the progress fields or the status fields are set, not both.
type ProgressUpdate struct {
	Current    int
	Total      int
	Page       string
	ETASeconds float64
	Status     batch.Status
	Message    string
}

type Model struct {
	updates     <-chan ProgressUpdate
	onInterrupt func()
	started     time.Time
	width       int
	current     int
	total       int
	page        string
	eta         float64
	status      batch.Status
	message     string
	interrupted bool
	quitting    bool
}

type doneMsg struct{}

type updateMsg ProgressUpdate

// NewModel builds the progress view. onInterrupt runs once when the user
// presses ctrl+c; the program keeps rendering until updates closes.
func NewModel(updates <-chan ProgressUpdate, onInterrupt func()) Model {
	return Model{updates: updates, onInterrupt: onInterrupt, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		if msg.Status != "" {
			m.status = msg.Status
			m.message = msg.Message
		} else {
			m.current = msg.Current
			m.total = msg.Total
			m.page = msg.Page
			m.eta = msg.ETASeconds
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC && !m.interrupted {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = float64(m.current) / float64(m.total)
		if ratio > 1 {
			ratio = 1
		}
	}

	status := string(m.status)
	if status == "" {
		status = "starting"
	}
	if m.interrupted {
		status = "cancelling"
	}

	lines := []string{
		titleStyle.Render("mangatint 🎨"),
		labelStyle.Render(fmt.Sprintf("Pages: %d/%d", m.current, m.total)) + dimStyle.Render("  "+status),
	}
	if m.page != "" {
		lines = append(lines, dimStyle.Render("Current: "+filepath.Base(m.page)))
	}
	if m.eta > 0 {
		lines = append(lines, dimStyle.Render("ETA: "+formatETA(m.eta)))
	}
	lines = append(lines,
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", time.Since(m.started).Round(time.Second))),
		barStyle.Render(renderBar(barWidth, ratio)),
	)
	if m.message != "" {
		lines = append(lines, labelStyle.Render(m.message))
	}

	return strings.Join(lines, "\n")
}

func formatETA(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}

func listenForUpdates(updates <-chan ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
