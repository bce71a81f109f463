package reporter

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"vlmeval/pkg/core"

	"github.com/olekukonko/tablewriter"
)

type TableReporter struct {
	Writer io.Writer
}

func (r TableReporter) Report(results core.Results) error {
	table := tablewriter.NewWriter(r.Writer)
	table.Header([]string{"Task", "Shots", "Trials", "Mean"})
	for _, task := range sortedTasks(results) {
		for _, shot := range results[task] {
			table.Append([]string{
				task,
				fmt.Sprintf("%d", shot.Shots),
				formatTrials(shot.Trials),
				fmt.Sprintf("%.2f", shot.Mean),
			})
		}
	}
	table.Render()
	return nil
}

func sortedTasks(results core.Results) []string {
	tasks := make([]string, 0, len(results))
	for task := range results {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)
	return tasks
}

func formatTrials(trials []float64) string {
	parts := make([]string, len(trials))
	for i, t := range trials {
		parts[i] = fmt.Sprintf("%.2f", t)
	}
	return strings.Join(parts, ", ")
}
