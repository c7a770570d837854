package harness

import (
	"context"
	"errors"
	"fmt"
)

// Control is the capability interface of an external fuzzing driver.
//
// Initialize is called once before the loop. ShouldContinue is called before
// every trial and returns false when the loop must stop.
type Control interface {
	Initialize() error
	ShouldContinue(maxTrials int) bool
}

// ControlFuncs adapts a pair of functions to the Control interface.
// Nil functions behave as a no-op Initialize and a ShouldContinue that returns false.
type ControlFuncs struct {
	InitializeFunc     func() error
	ShouldContinueFunc func(maxTrials int) bool
}

// Initialize calls InitializeFunc if set.
func (c ControlFuncs) Initialize() error {
	if c.InitializeFunc == nil {
		return nil
	}
	return c.InitializeFunc()
}

// ShouldContinue calls ShouldContinueFunc if set.
func (c ControlFuncs) ShouldContinue(maxTrials int) bool {
	if c.ShouldContinueFunc == nil {
		return false
	}
	return c.ShouldContinueFunc(maxTrials)
}

// ErrAlreadyInitialized is returned when Initialize is called twice on a BoundedControl.
var ErrAlreadyInitialized = errors.New("control already initialized")

// BoundedControl lets a fixed number of trials through.
//
// The trial bound is taken from the first ShouldContinue call, the same way a
// persistent-mode loop macro receives its iteration count. Cancelling the
// context stops the loop before the next trial.
//
// Thread-safety: not safe for concurrent use; the trial loop is single-threaded.
type BoundedControl struct {
	ctx         context.Context
	budget      *TrialBudget
	initialized bool
}

// NewBoundedControl creates a control bound to ctx.
func NewBoundedControl(ctx context.Context) *BoundedControl {
	if ctx == nil {
		ctx = context.Background()
	}
	return &BoundedControl{ctx: ctx}
}

// Initialize performs the one-time setup.
func (c *BoundedControl) Initialize() error {
	if c.initialized {
		return ErrAlreadyInitialized
	}
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("initialize control: %w", err)
	}
	c.initialized = true
	return nil
}

// ShouldContinue reports whether another trial may run.
func (c *BoundedControl) ShouldContinue(maxTrials int) bool {
	if c.ctx.Err() != nil {
		return false
	}
	if c.budget == nil {
		c.budget = NewTrialBudget(maxTrials)
	}
	return c.budget.Take()
}

// Trials returns the number of trials let through so far.
func (c *BoundedControl) Trials() int {
	if c.budget == nil {
		return 0
	}
	return c.budget.Used()
}

// Stopped reports whether the control's context has been cancelled.
func (c *BoundedControl) Stopped() bool {
	return c.ctx.Err() != nil
}

// TrialBudget counts trials against a fixed limit.
type TrialBudget struct {
	limit int
	used  int
}

// NewTrialBudget creates a budget of limit trials. A non-positive limit allows none.
func NewTrialBudget(limit int) *TrialBudget {
	if limit < 0 {
		limit = 0
	}
	return &TrialBudget{limit: limit}
}

// Take consumes one trial and reports whether it was within the limit.
// Once exhausted, the budget stays exhausted.
func (b *TrialBudget) Take() bool {
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

// Used returns the number of trials consumed.
func (b *TrialBudget) Used() int {
	return b.used
}

// Limit returns the trial limit.
func (b *TrialBudget) Limit() int {
	return b.limit
}

// Remaining returns the number of trials left.
func (b *TrialBudget) Remaining() int {
	return b.limit - b.used
}
