// Package main is the entry point for the pcb-cost CLI.
package main

import (
	"os"

	"pcb-cost/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
