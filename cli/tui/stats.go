package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/stratum/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_pipeline":
		content = m.renderStatsPipeline()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsPipeline() string {
	data, ok := m.data.(*reader.PipelineStats)
	if !ok {
		return "Invalid data type for stats_pipeline"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Pipeline Statistics"))
	b.WriteString("\n\n")

	queueTitle := lipgloss.NewStyle().
		Bold(true).
		Foreground(highlightColor).
		Render("Queues")
	b.WriteString(queueTitle)
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("GPS", int(data.Queues.GPS), highlightColor),
		m.renderStatBox("Mobile", int(data.Queues.Mobile), highlightColor),
	))
	b.WriteString("\n\n")

	backupTitle := lipgloss.NewStyle().
		Bold(true).
		Foreground(highlightColor).
		Render("Local Backups")
	b.WriteString(backupTitle)
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Pending", data.BackupsPending, warningColor),
		m.renderStatBox("Completed", data.BackupsCompleted, successColor),
		m.renderStatBox("Failed", data.BackupsFailed, errorColor),
	))
	b.WriteString("\n\n")

	recoveryTitle := lipgloss.NewStyle().
		Bold(true).
		Foreground(highlightColor).
		Render("Recovery Registry")
	b.WriteString(recoveryTitle)
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Pending", data.RecoveryPending, warningColor),
		m.renderStatBox("Completed", data.RecoveryCompleted, successColor),
		m.renderStatBox("Failed", data.RecoveryFailed, errorColor),
	))

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
