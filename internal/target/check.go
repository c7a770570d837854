package target

// TriggerSequence is the fixed prefix that causes deliberate termination.
const TriggerSequence = "abc"

// DefaultBufferSize is the capacity of the input buffer read per trial.
const DefaultBufferSize = 100

// Triggered reports whether the first n bytes of buf start with the trigger sequence.
//
// n is clamped to [0, len(buf)] so the routine never reads past the bytes
// actually returned by a read, nor past the slice itself.
func Triggered(buf []byte, n int) bool {
	n = clampLength(n, len(buf))

	if n > 0 && buf[0] == 'a' {
		if n > 1 && buf[1] == 'b' {
			if n > 2 && buf[2] == 'c' {
				return true
			}
		}
	}
	return false
}

// Checker runs the input-check routine and hands matching inputs to an Aborter.
// The zero value is not usable; Aborter must be set.
type Checker struct {
	Aborter Aborter
}

// NewChecker returns a Checker that aborts through a.
func NewChecker(a Aborter) *Checker {
	return &Checker{Aborter: a}
}

// Check inspects buf[:n] and calls Abort when it starts with the trigger sequence.
// Any other content returns with no side effect.
func (c *Checker) Check(buf []byte, n int) {
	if !Triggered(buf, n) {
		return
	}
	n = clampLength(n, len(buf))

	// The aborter may retain the input; the buffer is reused by the next trial.
	input := make([]byte, n)
	copy(input, buf[:n])
	c.Aborter.Abort(input)
}

func clampLength(n, capacity int) int {
	if n < 0 {
		return 0
	}
	if n > capacity {
		return capacity
	}
	return n
}
