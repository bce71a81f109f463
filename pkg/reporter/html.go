package reporter

import (
	"html/template"
	"io"

	"vlmeval/pkg/core"
)

type HTMLReporter struct {
	Writer io.Writer
	Title  string
}

func (r HTMLReporter) Report(results core.Results) error {
	title := r.Title
	if title == "" {
		title = "Evaluation Results"
	}

	type taskRows struct {
		Task  string
		Shots []row
	}
	tasks := make([]taskRows, 0, len(results))
	for _, task := range sortedTasks(results) {
		rows := make([]row, 0, len(results[task]))
		for _, shot := range results[task] {
			rows = append(rows, row{
				Shots:  shot.Shots,
				Trials: formatTrials(shot.Trials),
				Mean:   shot.Mean,
			})
		}
		tasks = append(tasks, taskRows{Task: task, Shots: rows})
	}

	data := struct {
		Title string
		Tasks []taskRows
	}{
		Title: title,
		Tasks: tasks,
	}

	tpl := template.Must(template.New("results").Parse(htmlTemplate))
	return tpl.Execute(r.Writer, data)
}

type row struct {
	Shots  int
	Trials string
	Mean   float64
}

const htmlTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{ .Title }}</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 24px; }
    table { border-collapse: collapse; width: 100%; margin-top: 16px; }
    th, td { border: 1px solid #ddd; padding: 8px; }
    th { background: #f5f5f5; text-align: left; }
  </style>
</head>
<body>
  <h1>{{ .Title }}</h1>
  {{ range .Tasks }}
  <h2>{{ .Task }}</h2>
  <table>
    <tr><th>Shots</th><th>Trials</th><th>Mean</th></tr>
    {{ range .Shots }}
    <tr>
      <td>{{ .Shots }}</td>
      <td>{{ .Trials }}</td>
      <td>{{ printf "%.2f" .Mean }}</td>
    </tr>
    {{ end }}
  </table>
  {{ end }}
</body>
</html>
`
