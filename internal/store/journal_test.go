package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func startTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.StartRun(context.Background(), Run{ID: id, StartedAt: t0, MaxTrials: 1000, BufferSize: 100})
	if err != nil {
		t.Fatalf("StartRun(%s) failed: %v", id, err)
	}
}

func TestStartRun_ReadBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	startTestRun(t, s, "run-1")

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Status != RunRunning {
		t.Errorf("Status = %q, want %q", run.Status, RunRunning)
	}
	if !run.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", run.StartedAt, t0)
	}
	if !run.FinishedAt.IsZero() {
		t.Errorf("FinishedAt = %v, want zero for a running run", run.FinishedAt)
	}
	if run.MaxTrials != 1000 || run.BufferSize != 100 {
		t.Errorf("MaxTrials/BufferSize = %d/%d, want 1000/100", run.MaxTrials, run.BufferSize)
	}
}

func TestStartRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	startTestRun(t, s, "run-1")

	err := s.StartRun(context.Background(), Run{ID: "run-1", StartedAt: t0})
	if err == nil {
		t.Error("expected error for duplicate run ID")
	}
}

func TestStartRun_Validation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.StartRun(ctx, Run{StartedAt: t0}); err == nil {
		t.Error("expected error for missing ID")
	}
	if err := s.StartRun(ctx, Run{ID: "r", Status: "bogus", StartedAt: t0}); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	startTestRun(t, s, "run-1")

	totals := RunTotals{Trials: 1000, BytesRead: 42, EmptyReads: 990, ReadErrors: 1}
	if err := s.FinishRun(ctx, "run-1", RunCompleted, totals, t0.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Status != RunCompleted {
		t.Errorf("Status = %q, want %q", run.Status, RunCompleted)
	}
	if run.Totals != totals {
		t.Errorf("Totals = %+v, want %+v", run.Totals, totals)
	}
	if !run.FinishedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("FinishedAt = %v", run.FinishedAt)
	}
}

func TestFinishRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.FinishRun(context.Background(), "missing", RunCompleted, RunTotals{}, t0)
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ReadRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns_Ordered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Fatalf("ListRuns() on empty journal = %v, want empty non-nil slice", runs)
	}

	for _, id := range []string{"run-b", "run-a", "run-c"} {
		startTestRun(t, s, id)
	}

	runs, err = s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	want := []string{"run-b", "run-a", "run-c"}
	if len(runs) != len(want) {
		t.Fatalf("ListRuns() returned %d runs, want %d", len(runs), len(want))
	}
	for i, id := range want {
		if runs[i].ID != id {
			t.Errorf("runs[%d].ID = %s, want %s (insertion order)", i, runs[i].ID, id)
		}
	}
}

func TestRecordFinding_NewAndDuplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	startTestRun(t, s, "run-1")
	startTestRun(t, s, "run-2")

	inserted, err := s.RecordFinding(ctx, Finding{RunID: "run-1", Trial: 7, Input: []byte("abc"), FoundAt: t0})
	if err != nil {
		t.Fatalf("RecordFinding() failed: %v", err)
	}
	if !inserted {
		t.Error("first RecordFinding() should insert")
	}

	inserted, err = s.RecordFinding(ctx, Finding{RunID: "run-2", Trial: 1, Input: []byte("abc"), FoundAt: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("second RecordFinding() failed: %v", err)
	}
	if inserted {
		t.Error("duplicate input should not insert a new finding")
	}

	findings, err := s.ListFindings(ctx, "")
	if err != nil {
		t.Fatalf("ListFindings() failed: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("ListFindings() returned %d findings, want 1", len(findings))
	}
	f := findings[0]
	if f.ID != FindingID([]byte("abc")) {
		t.Errorf("ID = %s, want content address", f.ID)
	}
	if f.Hits != 2 {
		t.Errorf("Hits = %d, want 2", f.Hits)
	}
	if f.RunID != "run-1" || f.LastRunID != "run-2" {
		t.Errorf("RunID/LastRunID = %s/%s, want run-1/run-2", f.RunID, f.LastRunID)
	}
	if f.Trial != 7 {
		t.Errorf("Trial = %d, want 7 (first sighting)", f.Trial)
	}
	if string(f.Input) != "abc" {
		t.Errorf("Input = %q, want abc", f.Input)
	}
	if !f.FoundAt.Equal(t0) {
		t.Errorf("FoundAt = %v, want %v", f.FoundAt, t0)
	}
}

func TestRecordFinding_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.RecordFinding(context.Background(), Finding{RunID: "ghost", Input: []byte("abc"), FoundAt: t0})
	if err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}

func TestListFindings_FilterByRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	startTestRun(t, s, "run-1")
	startTestRun(t, s, "run-2")

	for _, f := range []Finding{
		{RunID: "run-1", Input: []byte("abc1"), FoundAt: t0},
		{RunID: "run-2", Input: []byte("abc2"), FoundAt: t0},
		{RunID: "run-2", Input: []byte("abc1"), FoundAt: t0}, // re-hit in run-2
	} {
		if _, err := s.RecordFinding(ctx, f); err != nil {
			t.Fatalf("RecordFinding() failed: %v", err)
		}
	}

	run1, err := s.ListFindings(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListFindings(run-1) failed: %v", err)
	}
	if len(run1) != 1 || string(run1[0].Input) != "abc1" {
		t.Errorf("ListFindings(run-1) = %+v, want only abc1", run1)
	}

	run2, err := s.ListFindings(ctx, "run-2")
	if err != nil {
		t.Fatalf("ListFindings(run-2) failed: %v", err)
	}
	if len(run2) != 2 {
		t.Fatalf("ListFindings(run-2) returned %d findings, want 2", len(run2))
	}
	if string(run2[0].Input) != "abc1" || string(run2[1].Input) != "abc2" {
		t.Errorf("ListFindings(run-2) order = %q, %q; want seq order", run2[0].Input, run2[1].Input)
	}
}

func TestRecordScan_ListScans(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	recs := []ScanRecord{
		{
			ID: "scan-1", Profile: "full", Trigger: "schedule",
			Argv:     []string{"scanner", "ci", "--config", "p/default"},
			ExitCode: 0, Passed: true, StartedAt: t0, Duration: 1500 * time.Millisecond,
		},
		{
			ID: "scan-2", Profile: "diff", Trigger: "pull_request",
			Argv:     []string{"scanner", "ci", "--baseline-commit", "origin/main"},
			ExitCode: 1, Passed: false, Error: "findings reported", StartedAt: t0, Duration: time.Second,
		},
	}
	for _, rec := range recs {
		if err := s.RecordScan(ctx, rec); err != nil {
			t.Fatalf("RecordScan(%s) failed: %v", rec.ID, err)
		}
	}

	got, err := s.ListScans(ctx)
	if err != nil {
		t.Fatalf("ListScans() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListScans() returned %d records, want 2", len(got))
	}
	if got[0].ID != "scan-1" || !got[0].Passed || got[0].Duration != 1500*time.Millisecond {
		t.Errorf("scan-1 = %+v", got[0])
	}
	if len(got[0].Argv) != 4 || got[0].Argv[3] != "p/default" {
		t.Errorf("scan-1 argv = %v", got[0].Argv)
	}
	if got[1].Passed || got[1].ExitCode != 1 || got[1].Error != "findings reported" {
		t.Errorf("scan-2 = %+v", got[1])
	}
}

func TestRecordScan_RequiresID(t *testing.T) {
	s := createTestStore(t)
	if err := s.RecordScan(context.Background(), ScanRecord{Profile: "full"}); err == nil {
		t.Error("expected error for missing ID")
	}
}
