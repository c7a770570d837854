// Package target implements the input-check routine of the stdin fuzz target.
//
// The routine inspects at most three leading bytes of a buffer and deliberately
// terminates the process when they spell the trigger sequence "abc". It stands
// in for a real defect so a coverage-guided fuzzer has something to discover.
//
// # Length Guards
//
// Every byte after the first is inspected only when the valid length covers it:
//
//	n > 0 && buf[0] == 'a'
//	n > 1 && buf[1] == 'b'
//	n > 2 && buf[2] == 'c'
//
// An input of length 1 equal to "a" never inspects byte 1, and so on. The guards
// are part of the observable contract, not an optimization.
//
// # Aborting
//
// What happens on a match is delegated to an Aborter. ProcessAborter terminates
// the process with SIGABRT (on Unix) so an external fuzzing driver records a
// crash. RecordingAborter only records the input and is used by tests and by
// the replay command.
package target
