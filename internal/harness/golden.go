package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures a loop run for golden comparison.
type TraceSnapshot struct {
	Name   string       `json:"name"`
	Events []TrialEvent `json:"events"`
	Stats  Stats        `json:"stats"`
}

// MarshalSnapshot renders a snapshot as indented JSON with a trailing newline.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	if s.Events == nil {
		s.Events = []TrialEvent{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// AssertGolden compares a run's trace against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, trace *Trace, stats Stats) error {
	t.Helper()

	data, err := MarshalSnapshot(TraceSnapshot{
		Name:   name,
		Events: trace.Events(),
		Stats:  stats,
	})
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
