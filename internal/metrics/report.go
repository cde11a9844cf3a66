package metrics

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Padding(0, 1)
	diagonalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")).Padding(0, 1)
	titleStyle    = lipgloss.NewStyle().Bold(true)
)

// RenderMatrix draws a model × model matrix with the diagonal highlighted.
// rowLabel names what the rows are (e.g. "generating").
func RenderMatrix(title, rowLabel string, models []string, matrix [][]float64) string {
	headers := append([]string{rowLabel}, models...)
	rows := make([][]string, len(models))
	for i, name := range models {
		row := []string{name}
		for j := range models {
			v := 0.0
			if i < len(matrix) && j < len(matrix[i]) {
				v = matrix[i][j]
			}
			row = append(row, fmt.Sprintf("%.2f", v))
		}
		rows[i] = row
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow, col == 0:
				return headerStyle
			case row == col-1:
				return diagonalStyle
			default:
				return cellStyle
			}
		})

	return titleStyle.Render(title) + "\n" + t.String()
}

// RenderCells draws the per-cell fit statistics.
func RenderCells(s Summary) string {
	rows := make([][]string, 0, len(s.Cells))
	for _, c := range s.Cells {
		rows = append(rows, []string{
			c.Generating,
			c.Fitting,
			fmt.Sprintf("%d", c.Records),
			fmt.Sprintf("%.2f ± %.2f", c.NegLogLikelihood.Mean, c.NegLogLikelihood.StdDev()),
			fmt.Sprintf("%.2f", c.BIC.Mean),
			fmt.Sprintf("%d", c.Wins),
			fmt.Sprintf("%d", c.NonConverged),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("generating", "fitting", "runs", "nll", "bic", "wins", "non-converged").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return titleStyle.Render("Fit statistics per cell") + "\n" + t.String()
}

// Render is the full text report printed at the end of a run.
func Render(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d runs × %d participants, seed %d\n\n", s.RunID, s.Repetitions, s.Participants, s.Seed)
	b.WriteString(RenderMatrix("Confusion matrix p(fit | generating)", "generating", s.Models, s.Confusion))
	b.WriteString("\n\n")
	b.WriteString(RenderMatrix("Inversion matrix p(generating | fit)", "fitting", s.Models, s.Inversion))
	b.WriteString("\n\n")
	b.WriteString(RenderCells(s))
	b.WriteString("\n")
	return b.String()
}
