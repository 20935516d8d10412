// Command habitsync tracks habit scores locally and syncs them with a
// remote when one is reachable.
package main

import (
	"context"
	"os"

	"github.com/roach88/habitsync/internal/cli"
)

func main() {
	os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
