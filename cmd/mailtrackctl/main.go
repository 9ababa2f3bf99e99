package main

import (
	"os"

	"github.com/mdon/mailtrack/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
