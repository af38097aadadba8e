// Package main provides the entry point for the codalex CLI.
package main

import (
	"os"

	"github.com/brindle-dev/codalex/cmd/codalex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
