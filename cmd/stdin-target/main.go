// Command stdin-target is the minimal fuzz target: it runs 1000 trials over
// standard input with a 100-byte buffer and aborts with SIGABRT when a read
// starts with "abc". Build it and point a fuzzing driver at it:
//
//	go build -o stdin-target ./cmd/stdin-target
//	afl-fuzz -i seeds -o findings -- ./stdin-target
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/fuzzlab/internal/harness"
	"github.com/roach88/fuzzlab/internal/target"
)

func main() {
	loop := &harness.Loop{
		Control:    harness.NewBoundedControl(context.Background()),
		Input:      os.Stdin,
		Checker:    target.NewChecker(target.ProcessAborter{}),
		MaxTrials:  harness.DefaultMaxTrials,
		BufferSize: target.DefaultBufferSize,
	}
	if _, err := loop.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "stdin-target:", err)
		os.Exit(2)
	}
}
