// Command mvflow drives, records and tests MVI engines.
package main

import (
	"fmt"
	"os"

	"github.com/zoobzio/capitan"

	"github.com/pedroql/mvflow/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()

	// Deliver queued engine signals before exiting.
	capitan.Shutdown()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
