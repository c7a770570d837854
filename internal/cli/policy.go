package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzlab/internal/policy"
)

// PolicySummary describes a valid policy file.
type PolicySummary struct {
	Valid    bool             `json:"valid"`
	File     string           `json:"file"`
	Command  []string         `json:"command"`
	Profiles []policy.Profile `json:"profiles"`
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Work with scan policy files",
	}
	cmd.AddCommand(newPolicyValidateCommand(rootOpts))
	return cmd
}

func newPolicyValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <policy-file>",
		Short: "Validate a scan policy file",
		Long: `Validate a YAML or TOML scan policy against the policy schema.

Exit codes:
  0 - Policy is valid
  1 - Policy is invalid
  2 - Command error (file unreadable)

Examples:
  fuzzlab policy validate .fuzzlab/scan-policy.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyValidate(rootOpts, args[0], cmd)
		},
	}
}

func runPolicyValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, err := loadPolicy(formatter, path)
	if err != nil {
		return err
	}

	if formatter.JSON() {
		return formatter.Success(PolicySummary{
			Valid:    true,
			File:     path,
			Command:  p.Tool.Command,
			Profiles: p.Profiles,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ %s: %d profile(s) valid\n", path, len(p.Profiles))
	for _, prof := range p.Profiles {
		triggers := make([]string, len(prof.Triggers))
		for i, t := range prof.Triggers {
			triggers[i] = string(t)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s scan on %s, rule sets %s\n",
			prof.Name, prof.Mode, strings.Join(triggers, ","), strings.Join(prof.RuleSets, ","))
	}
	return nil
}

// loadPolicy loads path and reports failures through formatter.
// Invalid policies exit 1; unreadable files exit 2.
func loadPolicy(formatter *OutputFormatter, path string) (*policy.Policy, error) {
	p, err := policy.Load(path)
	if err == nil {
		return p, nil
	}

	var ve *policy.ValidationError
	if errors.As(err, &ve) {
		_ = formatter.Error(ErrCodePolicy, ve.Error(), map[string]string{
			"file":  path,
			"code":  ve.Code,
			"field": ve.Field,
		})
		return nil, WrapExitError(ExitFailure, fmt.Sprintf("%s: invalid policy", ErrCodePolicy), err)
	}
	return nil, formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read policy", err)
}
