// Command fuzzlab runs the stdin fuzz target, manages its crash journal and
// drives static-analysis scans from a policy file.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/fuzzlab/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		// cobra flag and argument errors never reach an OutputFormatter.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(exitErr.Code)
}
