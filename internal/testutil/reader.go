package testutil

import (
	"io"
	"sync"
)

// ReadStep is the outcome of one Read call on a ScriptedReader.
type ReadStep struct {
	Data []byte
	Err  error
}

// ScriptedReader replays a fixed sequence of reads, like a pipe fed in bursts.
//
// Each Read consumes one step. A step larger than the caller's buffer is split:
// the remainder is returned by the next Read, matching read(2) on a pipe. Once
// the steps are exhausted every Read returns 0, io.EOF.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedReader struct {
	mu    sync.Mutex
	steps []ReadStep
	calls int
}

// NewScriptedReader creates a reader returning one chunk per Read.
func NewScriptedReader(chunks ...string) *ScriptedReader {
	steps := make([]ReadStep, len(chunks))
	for i, c := range chunks {
		steps[i] = ReadStep{Data: []byte(c)}
	}
	return NewScriptedReaderSteps(steps...)
}

// NewScriptedReaderSteps creates a reader from explicit steps.
func NewScriptedReaderSteps(steps ...ReadStep) *ScriptedReader {
	return &ScriptedReader{steps: append([]ReadStep(nil), steps...)}
}

// Read implements io.Reader.
func (r *ScriptedReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	n := copy(p, step.Data)
	if n < len(step.Data) {
		r.steps[0] = ReadStep{Data: step.Data[n:], Err: step.Err}
		return n, nil
	}
	r.steps = r.steps[1:]
	return n, step.Err
}

// Calls returns the number of Read calls made so far.
func (r *ScriptedReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// MisbehavingReader violates the io.Reader contract on purpose.
// Every Read copies Fill into p and returns N and Err verbatim, whatever
// N is relative to len(p).
type MisbehavingReader struct {
	Fill []byte
	N    int
	Err  error
}

// Read implements io.Reader.
func (r *MisbehavingReader) Read(p []byte) (int, error) {
	copy(p, r.Fill)
	return r.N, r.Err
}
