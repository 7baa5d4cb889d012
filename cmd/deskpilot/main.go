// Package main provides the entry point for the deskpilot CLI.
package main

import (
	"fmt"
	"os"

	"github.com/deskpilot/deskpilot/cmd/deskpilot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
