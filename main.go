// File: main.go
package main

import (
	"github.com/glasswing-dev/webnav/cmd"
)

// main is the entry point for the webnav binary.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
