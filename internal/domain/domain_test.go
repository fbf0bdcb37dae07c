package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFlagUnmarshal(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    bool
		wantErr bool
	}{
		{name: "numeric one", in: `1`, want: true},
		{name: "string one", in: `"1"`, want: true},
		{name: "bool true", in: `true`, want: true},
		{name: "string true", in: `"true"`, want: true},
		{name: "numeric zero", in: `0`, want: false},
		{name: "string zero", in: `"0"`, want: false},
		{name: "bool false", in: `false`, want: false},
		{name: "null", in: `null`, want: false},
		{name: "empty string", in: `""`, want: false},
		{name: "garbage", in: `"maybe"`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var f Flag
			err := json.Unmarshal([]byte(tc.in), &f)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal %s: %v", tc.in, err)
			}
			if bool(f) != tc.want {
				t.Errorf("flag %s = %v, want %v", tc.in, bool(f), tc.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{
			name: "workbench format",
			in:   "2023-01-01 10:30:00",
			want: time.Date(2023, 1, 1, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "rfc3339",
			in:   "2023-01-01T10:30:00Z",
			want: time.Date(2023, 1, 1, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "iso without zone",
			in:   "2023-01-01T10:30:00",
			want: time.Date(2023, 1, 1, 10, 30, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTime(tc.in)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.in, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("parse %q = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
	if _, err := ParseTime(""); err == nil {
		t.Error("expected error for empty timestamp")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	cases := []struct {
		name     string
		st       JobStatus
		finished bool
		failed   bool
	}{
		{name: "empty means running", st: JobStatus{}},
		{name: "running", st: JobStatus{Status: "RUNNING"}},
		{name: "queued", st: JobStatus{Status: "QUEUED"}},
		{name: "finished", st: JobStatus{Status: "FINISHED"}, finished: true},
		{name: "finished lowercase", st: JobStatus{Status: "finished"}, finished: true},
		{name: "ready", st: JobStatus{Status: "READY"}, finished: true},
		{name: "is_finished flag only", st: JobStatus{IsFinished: true}, finished: true},
		{name: "error", st: JobStatus{Status: "ERROR"}, failed: true},
		{name: "failed", st: JobStatus{Status: "FAILED"}, failed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.st.Finished(); got != tc.finished {
				t.Errorf("Finished() = %v, want %v", got, tc.finished)
			}
			if got := tc.st.Failed(); got != tc.failed {
				t.Errorf("Failed() = %v, want %v", got, tc.failed)
			}
			if got := tc.st.Terminal(); got != (tc.finished || tc.failed) {
				t.Errorf("Terminal() = %v, want %v", got, tc.finished || tc.failed)
			}
		})
	}
}

func TestPlanValidate(t *testing.T) {
	valid := Plan{
		ID:         "p1",
		TotalScans: 1,
		Scans:      []PlanEntry{{ScanCode: "scan_a", AgeDays: 400}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}

	cases := []struct {
		name string
		plan Plan
	}{
		{
			name: "count mismatch",
			plan: Plan{TotalScans: 2, Scans: []PlanEntry{{ScanCode: "a"}}},
		},
		{
			name: "missing scan code",
			plan: Plan{TotalScans: 1, Scans: []PlanEntry{{ScanName: "nameless"}}},
		},
		{
			name: "negative age",
			plan: Plan{TotalScans: 1, Scans: []PlanEntry{{ScanCode: "a", AgeDays: -1}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.plan.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSummaryAdd(t *testing.T) {
	var s Summary
	s.Add(Outcome{ScanCode: "a", Status: OutcomeSucceeded})
	s.Add(Outcome{ScanCode: "b", Status: OutcomeSkipped, Reason: "already archived"})
	s.Add(Outcome{ScanCode: "c", Status: OutcomeFailed, Reason: "boom"})

	if s.Succeeded != 1 || s.Skipped != 1 || s.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", s.Succeeded, s.Skipped, s.Failed)
	}
	if len(s.Outcomes) != 3 {
		t.Errorf("got %d outcomes, want 3", len(s.Outcomes))
	}
	if s.OK() {
		t.Error("summary with a failure must not be OK")
	}

	var clean Summary
	clean.Add(Outcome{ScanCode: "a", Status: OutcomeSucceeded})
	if !clean.OK() {
		t.Error("summary without failures must be OK")
	}
}
