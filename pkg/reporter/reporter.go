package reporter

import "vlmeval/pkg/core"

// Reporter renders an aggregate result.
type Reporter interface {
	Report(results core.Results) error
}

const (
	FormatJSON     = "json"
	FormatTable    = "table"
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)
