package commands

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// markdownTable renders rows (an object or a list of objects) as a titled
// markdown table. With no headers the union of keys is used. Columns that
// are empty in every row are dropped.
func markdownTable(title string, rows any, headers []string) string {
	items := asList(rows)
	var b strings.Builder
	b.WriteString("### " + title + "\n")

	if len(items) == 0 {
		b.WriteString("**No entries.**\n")
		return b.String()
	}
	if len(headers) == 0 {
		headers = keysOf(items)
	}

	var cols []string
	for _, h := range headers {
		for _, item := range items {
			if !isEmpty(asMap(item)[h]) {
				cols = append(cols, h)
				break
			}
		}
	}
	if len(cols) == 0 {
		b.WriteString("**No entries.**\n")
		return b.String()
	}

	labels := make([]string, len(cols))
	for i, c := range cols {
		labels[i] = headerLabel(c)
	}

	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		Headers(labels...)
	for _, item := range items {
		m := asMap(item)
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = escapeCell(cellText(m[c]))
		}
		t.Row(row...)
	}
	b.WriteString(t.String())
	b.WriteString("\n")
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
