package main

import (
	"strconv"

	"github.com/EternisAI/vconnector/internal/store"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/lo"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// renderRecords prints records without their passwords.
func renderRecords(records []store.ConnectionRecord) string {
	rows := lo.Map(records, func(r store.ConnectionRecord, _ int) []string {
		return []string{r.Host, r.Username, strconv.FormatBool(r.Enabled)}
	})
	return renderTable([]string{"HOST", "USERNAME", "ENABLED"}, rows)
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
