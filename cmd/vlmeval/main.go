package main

import (
	"os"

	"vlmeval/cmd/vlmeval/commands"
)

func main() {
	root := commands.NewRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
