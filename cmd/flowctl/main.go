// Command flowctl is a thin, non-core example CLI: it runs one of the
// spec.md §8 literal scenarios end to end and logs each store event as
// it happens. It exists only so github.com/spf13/cobra and
// github.com/charmbracelet/log — both ambient to the core engine — have
// a legitimate, exercised home; no core package imports this one.
package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/dshills/flowrun/cmd/flowctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
