// Command pairsync synchronizes a list of short messages between two devices.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/pairsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
