package reporter

import (
	"encoding/csv"
	"io"
	"strconv"

	"vlmeval/pkg/core"
)

type CSVReporter struct {
	Writer io.Writer
}

func (r CSVReporter) Report(results core.Results) error {
	writer := csv.NewWriter(r.Writer)
	header := []string{"task", "shots", "trial", "score", "mean"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, task := range sortedTasks(results) {
		for _, shot := range results[task] {
			for trial, score := range shot.Trials {
				record := []string{
					task,
					strconv.Itoa(shot.Shots),
					strconv.Itoa(trial),
					strconv.FormatFloat(score, 'f', 4, 64),
					strconv.FormatFloat(shot.Mean, 'f', 4, 64),
				}
				if err := writer.Write(record); err != nil {
					return err
				}
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
