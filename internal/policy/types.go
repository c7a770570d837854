package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a profile that does not set its own timeout.
const DefaultTimeout = 30 * time.Minute

// Mode selects how much of the tree a profile scans.
type Mode string

const (
	// ModeFull scans the whole repository.
	ModeFull Mode = "full"
	// ModeDiff scans only changes relative to a baseline ref.
	ModeDiff Mode = "diff"
)

// Policy is a decoded and validated policy file.
type Policy struct {
	Tool     Tool      `json:"tool"`
	Profiles []Profile `json:"profiles"`
}

// Tool describes how to invoke the external analyzer.
type Tool struct {
	Command      []string `json:"command"`
	RuleFlag     string   `json:"rule_flag"`
	BaselineFlag string   `json:"baseline_flag"`
	ExtraArgs    []string `json:"extra_args"`
	PassEnv      []string `json:"pass_env"`
}

// Profile is one named scan configuration.
type Profile struct {
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Triggers       []Trigger `json:"triggers"`
	Mode           Mode      `json:"mode"`
	RuleSets       []string  `json:"rule_sets"`
	BaselineRef    string    `json:"baseline_ref,omitempty"`
	Timeout        string    `json:"timeout,omitempty"`
	FailOnFindings bool      `json:"fail_on_findings"`
}

// Matches reports whether the profile is selected by t.
func (p Profile) Matches(t Trigger) bool {
	for _, pt := range p.Triggers {
		if pt == t {
			return true
		}
	}
	return false
}

// TimeoutDuration returns the parsed timeout or DefaultTimeout when unset.
func (p Profile) TimeoutDuration() (time.Duration, error) {
	if p.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", p.Timeout)
	}
	return d, nil
}

// Invocation is one planned execution of the tool.
type Invocation struct {
	Profile        string
	Trigger        Trigger
	Mode           Mode
	Argv           []string
	Env            []string // names of variables passed through; empty means all
	Timeout        time.Duration
	FailOnFindings bool
}

type invocationJSON struct {
	Profile        string   `json:"profile"`
	Trigger        Trigger  `json:"trigger"`
	Mode           Mode     `json:"mode"`
	Argv           []string `json:"argv"`
	Env            []string `json:"env"`
	Timeout        string   `json:"timeout"`
	FailOnFindings bool     `json:"fail_on_findings"`
}

// MarshalJSON renders Timeout as a duration string.
func (inv Invocation) MarshalJSON() ([]byte, error) {
	env := inv.Env
	if env == nil {
		env = []string{}
	}
	return json.Marshal(invocationJSON{
		Profile:        inv.Profile,
		Trigger:        inv.Trigger,
		Mode:           inv.Mode,
		Argv:           inv.Argv,
		Env:            env,
		Timeout:        inv.Timeout.String(),
		FailOnFindings: inv.FailOnFindings,
	})
}

// ErrNoProfile is returned by Plan when no profile matches the request.
var ErrNoProfile = errors.New("no matching profile")

// ErrScanFailed is returned by Runner.Run when at least one invocation failed.
var ErrScanFailed = errors.New("scan failed")

// Validation error codes.
const (
	ErrCodeUnsupportedFormat = "P001"
	ErrCodeParse             = "P002"
	ErrCodeSchema            = "P003"
	ErrCodeDuplicateProfile  = "P004"
	ErrCodeUnknownTrigger    = "P005"
	ErrCodeMissingBaseline   = "P006"
	ErrCodeBadTimeout        = "P007"
)

// ValidationError reports a problem with a policy file.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
