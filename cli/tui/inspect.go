package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/stratum/cli/reader"
)

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_backup":
		content = m.renderInspectBackup()
	case "inspect_recovery":
		content = m.renderInspectRecovery()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectBackup() string {
	data, ok := m.data.(*reader.BackupSummary)
	if !ok {
		return "Invalid data type for inspect_backup"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Local Backup Entry"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Backup ID", data.ID},
		{"Kind", data.Kind},
		{"Status", data.Status},
		{"Records", fmt.Sprintf("%d", data.Records)},
		{"Retries", fmt.Sprintf("%d/%d", data.RetryCount, data.MaxRetries)},
		{"Created At", data.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if data.LastError != "" {
		rows = append(rows, []string{"Last Error", data.LastError})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		switch row[0] {
		case "Status":
			value = StateStyle(data.Status).Render(value)
		case "Last Error":
			value = ErrorStyle.Render(value)
		default:
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	return BoxStyle.Render(b.String())
}

func (m InspectModel) renderInspectRecovery() string {
	data, ok := m.data.(*reader.RecoverySummary)
	if !ok {
		return "Invalid data type for inspect_recovery"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Recovery Registry Entry"))
	b.WriteString("\n\n")

	originals := "no"
	if data.HasOriginals {
		originals = "yes"
	}

	rows := [][]string{
		{"Entry ID", data.ID},
		{"Kind", data.Kind},
		{"Status", data.Status},
		{"Object", data.ObjectName},
		{"Retries", fmt.Sprintf("%d/%d", data.RetryCount, data.MaxRetries)},
		{"Originals", originals},
		{"Created At", data.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if data.LastError != "" {
		rows = append(rows, []string{"Last Error", data.LastError})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		switch row[0] {
		case "Status":
			value = StateStyle(data.Status).Render(value)
		case "Last Error":
			value = ErrorStyle.Render(value)
		default:
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	return BoxStyle.Render(b.String())
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
