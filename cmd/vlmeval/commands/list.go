package commands

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available components",
		RunE: func(cmd *cobra.Command, args []string) error {
			writeList("Tasks", []string{"coco", "flickr", "vqav2", "ok-vqa", "imagenet"})
			writeList("Providers", []string{"mock", "server", "gemini", "openai", "anthropic"})
			writeList("Formats", []string{"table", "json", "html", "markdown", "csv"})
			writeList("Log formats", []string{"json", "archive", "none"})
			return nil
		},
	}
	return cmd
}

func writeList(title string, items []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{title})
	for _, item := range items {
		table.Append([]string{item})
	}
	table.Render()
}
