package reporter

import (
	"fmt"
	"io"

	"vlmeval/pkg/core"
)

type MarkdownReporter struct {
	Writer io.Writer
}

func (r MarkdownReporter) Report(results core.Results) error {
	if _, err := fmt.Fprintf(r.Writer, "# Evaluation Results\n\n"); err != nil {
		return err
	}
	for _, task := range sortedTasks(results) {
		if _, err := fmt.Fprintf(r.Writer, "## %s\n\n", escapePipe(task)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(r.Writer, "| Shots | Trials | Mean |\n|---|---|---|\n"); err != nil {
			return err
		}
		for _, shot := range results[task] {
			if _, err := fmt.Fprintf(
				r.Writer,
				"| %d | %s | %.2f |\n",
				shot.Shots,
				formatTrials(shot.Trials),
				shot.Mean,
			); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(r.Writer, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func escapePipe(input string) string {
	if input == "" {
		return ""
	}
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if r == '|' {
			out = append(out, '\\', r)
		} else if r == '\n' || r == '\r' {
			out = append(out, ' ')
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}
