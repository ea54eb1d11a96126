// Package main is the scopestar command.
package main

import (
	"os"

	"github.com/leapstack-labs/scopestar/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
