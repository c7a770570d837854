package policy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Trigger is the CI event that started a pipeline.
type Trigger string

const (
	TriggerSchedule    Trigger = "schedule"
	TriggerPullRequest Trigger = "pull_request"
	TriggerPush        Trigger = "push"
	TriggerManual      Trigger = "manual"
)

// Triggers lists every known trigger.
var Triggers = []Trigger{TriggerSchedule, TriggerPullRequest, TriggerPush, TriggerManual}

var folder = cases.Fold()

// foldName normalizes s for case-insensitive comparison.
// NFC first so composed and decomposed spellings fold to the same string.
func foldName(s string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(s)))
}

// ParseTrigger resolves a trigger name. Matching ignores case, and "-" is
// accepted in place of "_" ("Pull-Request" is pull_request).
func ParseTrigger(s string) (Trigger, error) {
	key := strings.ReplaceAll(foldName(s), "-", "_")
	for _, t := range Triggers {
		if string(t) == key {
			return t, nil
		}
	}
	return "", &ValidationError{
		Code:    ErrCodeUnknownTrigger,
		Field:   "trigger",
		Message: fmt.Sprintf("unknown trigger %q (want one of schedule, pull_request, push, manual)", s),
	}
}
