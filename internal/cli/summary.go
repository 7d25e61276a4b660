package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// RenderSummary renders the end-of-run report: totals, then counts by
// category, method and action, then where the tables were written.
func RenderSummary(report *service.Report, outputs []string) string {
	s := report.Summary

	var b strings.Builder
	fmt.Fprintf(&b, "Disputes classified: %s\n", BoldStyle.Render(fmt.Sprint(s.TotalDisputes)))
	if s.MissingReferences > 0 {
		b.WriteString(FormatWarning(fmt.Sprintf("%d disputes reference unknown transactions", s.MissingReferences)) + "\n")
	}
	if s.MissingText > 0 {
		b.WriteString(FormatWarning(fmt.Sprintf("%d disputes have no description", s.MissingText)) + "\n")
	}
	b.WriteString(SubtleStyle.Render(fmt.Sprintf("Run %s in %s", report.RunID, s.Duration.Round(time.Millisecond))))

	columns := lipgloss.JoinHorizontal(lipgloss.Top,
		countTable("Category", s.ByCategory, nil),
		countTable("Method", s.ByMethod, func(m model.ClassificationMethod) lipgloss.Style {
			if style, ok := MethodStyles[m]; ok {
				return style
			}
			return TableCellStyle
		}),
		countTable("Action", s.ByAction, nil),
	)

	sections := []string{b.String(), columns}
	if len(outputs) > 0 {
		lines := make([]string, 0, len(outputs))
		for _, out := range outputs {
			lines = append(lines, FolderIcon+"  "+out)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return RenderBox(ChartIcon+" Triage Summary", lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// countTable renders one two-column breakdown sorted by key.
func countTable[K ~string](title string, counts map[K]int, styleFor func(K) lipgloss.Style) string {
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	width := len(title)
	for _, k := range keys {
		width = max(width, lipgloss.Width(string(k)))
	}

	rows := []string{TableHeaderStyle.Render(fmt.Sprintf("%-*s %5s", width, title, "Count"))}
	for _, k := range keys {
		label := fmt.Sprintf("%-*s", width, string(k))
		if styleFor != nil {
			label = styleFor(k).Render(label)
		}
		rows = append(rows, fmt.Sprintf("%s %5d", label, counts[k]))
	}

	return TableCellStyle.PaddingRight(4).Render(strings.Join(rows, "\n"))
}
