package policy

import (
	"fmt"
	"slices"
)

// PlanOptions narrows and parameterizes Plan.
type PlanOptions struct {
	// BaselineRef overrides each diff profile's baseline_ref.
	BaselineRef string
	// Profile restricts the plan to the named profile (case-insensitive).
	Profile string
}

// Plan returns the invocations selected by trigger, in profile declaration
// order. It returns ErrNoProfile when nothing matches.
func Plan(p *Policy, trigger Trigger, opts PlanOptions) ([]Invocation, error) {
	if p == nil {
		return nil, fmt.Errorf("plan: policy is required")
	}
	t, err := ParseTrigger(string(trigger))
	if err != nil {
		return nil, err
	}

	want := foldName(opts.Profile)
	var invs []Invocation
	for i, prof := range p.Profiles {
		if want != "" && foldName(prof.Name) != want {
			continue
		}
		if !prof.Matches(t) {
			continue
		}
		inv, err := p.invocation(i, t, opts)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}

	if len(invs) == 0 {
		if opts.Profile != "" {
			return nil, fmt.Errorf("profile %q for trigger %s: %w", opts.Profile, t, ErrNoProfile)
		}
		return nil, fmt.Errorf("trigger %s: %w", t, ErrNoProfile)
	}
	return invs, nil
}

func (p *Policy) invocation(i int, t Trigger, opts PlanOptions) (Invocation, error) {
	prof := p.Profiles[i]

	argv := slices.Clone(p.Tool.Command)
	argv = append(argv, p.Tool.ExtraArgs...)
	for _, rs := range prof.RuleSets {
		argv = append(argv, p.Tool.RuleFlag, rs)
	}

	if prof.Mode == ModeDiff {
		ref := opts.BaselineRef
		if ref == "" {
			ref = prof.BaselineRef
		}
		if ref == "" {
			return Invocation{}, &ValidationError{
				Code:    ErrCodeMissingBaseline,
				Field:   fmt.Sprintf("profiles.%d.baseline_ref", i),
				Message: fmt.Sprintf("diff profile %q needs a baseline ref", prof.Name),
			}
		}
		argv = append(argv, p.Tool.BaselineFlag, ref)
	}

	timeout, err := prof.TimeoutDuration()
	if err != nil {
		return Invocation{}, &ValidationError{
			Code:    ErrCodeBadTimeout,
			Field:   fmt.Sprintf("profiles.%d.timeout", i),
			Message: err.Error(),
		}
	}

	return Invocation{
		Profile:        prof.Name,
		Trigger:        t,
		Mode:           prof.Mode,
		Argv:           argv,
		Env:            slices.Clone(p.Tool.PassEnv),
		Timeout:        timeout,
		FailOnFindings: prof.FailOnFindings,
	}, nil
}
