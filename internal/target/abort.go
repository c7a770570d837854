package target

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
)

// Aborter receives inputs that matched the trigger sequence.
type Aborter interface {
	Abort(input []byte)
}

// AborterFunc adapts a function to the Aborter interface.
type AborterFunc func(input []byte)

// Abort calls f(input).
func (f AborterFunc) Abort(input []byte) {
	f(input)
}

// CrashError is the panic value raised by ProcessAborter.
// It is the only failure class of the target and stands in for a real defect.
type CrashError struct {
	Input []byte
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("deliberate crash: input %q starts with trigger sequence %q", e.Input, TriggerSequence)
}

// ProcessAborter terminates the process abnormally.
//
// The runtime traceback level is switched to "crash" before panicking, which
// makes the Go runtime re-raise SIGABRT after printing the traceback. Fuzzing
// drivers classify the exit as a crash rather than a plain non-zero status.
type ProcessAborter struct {
	// Stderr receives a one-line diagnostic. Defaults to os.Stderr.
	Stderr io.Writer
}

// Abort never returns.
func (a ProcessAborter) Abort(input []byte) {
	w := a.Stderr
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "target: trigger sequence matched after %d byte(s), aborting\n", len(input))

	debug.SetTraceback("crash")
	panic(&CrashError{Input: input})
}

// RecordingAborter records aborted inputs instead of terminating.
//
// Thread-safety: safe for concurrent use.
type RecordingAborter struct {
	mu     sync.Mutex
	inputs [][]byte
}

// Abort records a copy of input.
func (r *RecordingAborter) Abort(input []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, append([]byte(nil), input...))
}

// Count returns how many times Abort was called.
func (r *RecordingAborter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inputs)
}

// Inputs returns the recorded inputs in call order.
func (r *RecordingAborter) Inputs() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.inputs))
	copy(out, r.inputs)
	return out
}

// Reset forgets all recorded inputs.
func (r *RecordingAborter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = nil
}
