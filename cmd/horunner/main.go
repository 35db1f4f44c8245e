// main.go
//
// Minimal entry point that delegates CLI handling to the Cobra root command in internal/cli/root.go

package main

import (
	"github.com/thalesfsp/horunner/internal/cli"
)

func main() {
	cli.Execute()
}
