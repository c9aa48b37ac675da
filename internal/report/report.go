// Package report formats run summaries as terminal tables.
package report

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hed1ad/sensorguard/pkg/dataset"
	"github.com/hed1ad/sensorguard/pkg/model"
)

func newWriter() table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return w
}

// Training summarizes a trained model and its held-out evaluation.
func Training(m *model.Model, trainRows int, e model.Evaluation) string {
	w := newWriter()
	w.SetTitle("training")
	w.AppendHeader(table.Row{"metric", "value"})
	w.AppendRows([]table.Row{
		{"training rows", trainRows},
		{"features", len(m.Features())},
		{"contamination", fmt.Sprintf("%.4f", m.Contamination())},
		{"held-out rows", e.Rows},
		{"held-out flagged", fmt.Sprintf("%d (%.2f%%)", e.Flagged, 100*e.FlaggedRate())},
		{"held-out abnormal", e.Abnormal},
		{"precision", fmt.Sprintf("%.3f", e.Precision())},
		{"recall", fmt.Sprintf("%.3f", e.Recall())},
	})
	return w.Render()
}

// Statuses counts rows and anomaly flags per status label of a scored
// table.
func Statuses(t *dataset.Table) string {
	rows := make(map[string]int)
	flagged := make(map[string]int)
	var order []string
	flags := t.Values[dataset.FlagColumn]
	for i, s := range t.Status {
		if _, ok := rows[s]; !ok {
			order = append(order, s)
		}
		rows[s]++
		if flags != nil && flags[i] == 1 {
			flagged[s]++
		}
	}

	w := newWriter()
	w.AppendHeader(table.Row{"status", "rows", "flagged"})
	total := 0
	for _, s := range order {
		label := s
		if label == "" {
			label = "(none)"
		}
		w.AppendRow(table.Row{label, rows[s], flagged[s]})
		total += flagged[s]
	}
	w.AppendFooter(table.Row{"total", t.Len(), total})
	return w.Render()
}
