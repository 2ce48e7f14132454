// Package main provides the CLI for mergepivot, a spreadsheet merge and
// pivot tool.
package main

import (
	"os"

	"github.com/leapstack-labs/mergepivot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
