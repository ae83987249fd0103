package main

import (
	"os"

	"github.com/netsentry/netsentry/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
