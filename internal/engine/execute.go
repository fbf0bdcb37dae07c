package engine

import (
	"context"
	"log"

	"scansweep/internal/api"
	"scansweep/internal/domain"
)

// Action is the mutating operation a plan execution applies per entry.
type Action string

const (
	ActionArchive Action = "archive"
	ActionDelete  Action = "delete"
)

// ExecutePlan applies action to every plan entry in order. Eligibility is
// never re-derived from live timestamps: the plan is a contract, and a gap
// between planning and execution must not rescope the operation. The only
// live check is whether the scan still exists and is not already in the
// target state. One entry failing never stops the rest; the summary carries
// one outcome per entry. The returned error is non-nil only when the run was
// interrupted before processing the whole plan.
func (e Engine) ExecutePlan(ctx context.Context, plan domain.Plan, action Action) (domain.Summary, error) {
	sum := domain.Summary{PlanID: plan.ID}
	for i, entry := range plan.Scans {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		log.Printf("(%d/%d) %s scan %s", i+1, len(plan.Scans), action, entry.ScanCode)
		sum.Add(e.executeEntry(ctx, entry, action))
	}
	return sum, nil
}

func (e Engine) executeEntry(ctx context.Context, entry domain.PlanEntry, action Action) domain.Outcome {
	out := domain.Outcome{ScanCode: entry.ScanCode, ScanName: entry.ScanName}

	info, err := e.API.ScanInfo(ctx, entry.ScanCode)
	switch {
	case api.IsNotFound(err):
		out.Status = domain.OutcomeSkipped
		out.Reason = "scan no longer exists"
		return out
	case err != nil:
		out.Status = domain.OutcomeFailed
		out.Reason = err.Error()
		return out
	}
	if action == ActionArchive && bool(info.IsArchived) {
		out.Status = domain.OutcomeSkipped
		out.Reason = "already archived"
		return out
	}

	switch action {
	case ActionArchive:
		err = e.API.ArchiveScan(ctx, entry.ScanCode)
	case ActionDelete:
		err = e.API.DeleteScan(ctx, entry.ScanCode)
	}
	switch {
	case api.IsNotFound(err):
		// Removed between the re-check and the call; the target state holds.
		out.Status = domain.OutcomeSkipped
		out.Reason = "removed concurrently"
	case err != nil:
		out.Status = domain.OutcomeFailed
		out.Reason = err.Error()
	default:
		out.Status = domain.OutcomeSucceeded
	}
	return out
}
