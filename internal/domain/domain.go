package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Scan is a single entry from the scan listing. The listing only carries
// identity; details come from a separate lookup.
type Scan struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ScanInfo is the full record for one scan.
type ScanInfo struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	ProjectCode string `json:"project_code"`
	IsArchived  Flag   `json:"is_archived"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
}

// CreatedAt parses the creation timestamp.
func (s ScanInfo) CreatedAt() (time.Time, error) { return ParseTime(s.Created) }

// UpdatedAt parses the last-modified timestamp.
func (s ScanInfo) UpdatedAt() (time.Time, error) { return ParseTime(s.Updated) }

// PlanEntry is a snapshot of one scan at plan-creation time. Once written to a
// plan it is never updated.
type PlanEntry struct {
	ProjectName  string    `json:"project_name"`
	ScanCode     string    `json:"scan_code"`
	ScanName     string    `json:"scan_name"`
	CreationDate time.Time `json:"creation_date"`
	LastModified time.Time `json:"last_modified"`
	AgeDays      int       `json:"age_days"`
}

// Plan is the reviewable document consumed by archive/delete. The executor
// trusts it as written and never re-derives eligibility from live state.
type Plan struct {
	ID         string      `json:"plan_id"`
	CreatedAt  time.Time   `json:"created_at"`
	TotalScans int         `json:"total_scans"`
	Scans      []PlanEntry `json:"scans"`
}

// Validate checks internal consistency of a loaded plan.
func (p Plan) Validate() error {
	if p.TotalScans != len(p.Scans) {
		return fmt.Errorf("plan total_scans=%d but contains %d scans", p.TotalScans, len(p.Scans))
	}
	for _, e := range p.Scans {
		if e.ScanCode == "" {
			return fmt.Errorf("plan entry %q has no scan_code", e.ScanName)
		}
		if e.AgeDays < 0 {
			return fmt.Errorf("plan entry %s has negative age %d", e.ScanCode, e.AgeDays)
		}
	}
	return nil
}

// JobStatus is the state of an asynchronous server-side process. An empty
// status means the server has not reported completion, which callers must
// treat as still running.
type JobStatus struct {
	Status     string `json:"status"`
	IsFinished Flag   `json:"is_finished"`
	Message    string `json:"message"`
}

// Finished reports whether the job reached its successful terminal state.
func (j JobStatus) Finished() bool {
	if j.IsFinished {
		return true
	}
	switch strings.ToUpper(j.Status) {
	case "FINISHED", "READY":
		return true
	}
	return false
}

// Failed reports whether the job reached a failed terminal state.
func (j JobStatus) Failed() bool {
	switch strings.ToUpper(j.Status) {
	case "ERROR", "FAILED":
		return true
	}
	return false
}

// Terminal reports whether the job will not change further.
func (j JobStatus) Terminal() bool { return j.Finished() || j.Failed() }

// OutcomeStatus classifies the result of executing one plan entry.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the per-entry result of a plan execution.
type Outcome struct {
	ScanCode string        `json:"scan_code"`
	ScanName string        `json:"scan_name"`
	Status   OutcomeStatus `json:"status"`
	Reason   string        `json:"reason,omitempty"`
}

// Summary aggregates outcomes for one execution run.
type Summary struct {
	PlanID    string    `json:"plan_id"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Add records one outcome.
func (s *Summary) Add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}

// OK reports whether the run completed without failures.
func (s Summary) OK() bool { return s.Failed == 0 }

// Flag is a boolean that tolerates the wire formats the vendor actually
// sends: true/false, 0/1, "0"/"1" and "true"/"false".
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	switch strings.ToLower(s) {
	case "1", "true":
		*f = true
	case "", "0", "false", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", string(b))
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) { return json.Marshal(bool(f)) }

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseTime parses the timestamp formats the vendor emits.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
