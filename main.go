// The main package for the pageview-counter executable.
package main

import (
	"github.com/JakeFAU/pageview-counter/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
