// Package main provides the entry point for the codebased CLI.
package main

import (
	"os"

	"github.com/codebased/codebased/cmd/codebased/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
