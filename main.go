// The main package for the stockroom executable.
package main

import (
	"github.com/JakeFAU/stockroom/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
