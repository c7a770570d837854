// Package harness provides the trial loop of the stdin fuzz target.
//
// A trial is one iteration of clear-buffer, read, check:
//
//	ctl.Initialize()
//	for ctl.ShouldContinue(maxTrials) {
//	    clear(buf)
//	    n, _ := input.Read(buf)
//	    checker.Check(buf, clamp(n))
//	}
//
// # Control Hooks
//
// Persistent-mode fuzzing drivers bracket the loop with two hooks: a one-time
// setup and a per-iteration gate that both allows the process to be re-executed
// without forking and enforces the trial bound. The harness models them as the
// Control capability interface so the loop can be tested without any driver.
//
// BoundedControl is the default implementation. It lets exactly maxTrials trials
// through and stops early when its context is cancelled, which the CLI wires to
// SIGINT/SIGTERM.
//
// # Failure Semantics
//
// There is no recoverable error path inside the loop. End of input is a normal
// trial with an all-zero buffer; other read errors are logged and counted, and
// the trial proceeds with the clamped count. The only failure is the deliberate
// abort performed by the checker.
//
// # Deterministic Testing
//
// Observers receive a TrialEvent per trial. The Trace observer collects them so
// tests can compare the loop's behaviour against golden files:
//
//	go test ./internal/harness -update
package harness
