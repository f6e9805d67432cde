// File: main.go
package main

import (
	"github.com/crosslister/postflow/cmd"
)

// main is the entry point for the postflow CLI application.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
