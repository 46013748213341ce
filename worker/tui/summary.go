package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type SummaryRow struct {
	Label string
	Value string
}

// RenderSummary prints the end-of-job report as an aligned two column
// table.
func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		label := fmt.Sprintf("%-*s", labelWidth, row.Label)
		lines = append(lines, labelStyle.Render(label)+"  "+valueStyle.Render(row.Value))
	}
	return strings.Join(lines, "\n")
}

var valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
