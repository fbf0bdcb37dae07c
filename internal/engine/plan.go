package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"scansweep/internal/api"
	"scansweep/internal/domain"
)

// BuildPlan selects the stale scans out of infos and snapshots them into a
// plan. It performs no API calls: given the same inputs it always selects the
// same entries, which is what makes the plan reviewable before execution.
func BuildPlan(infos []domain.ScanInfo, projectNames map[string]string, now time.Time, threshold time.Duration) domain.Plan {
	var entries []domain.PlanEntry
	for _, info := range infos {
		if !IsStale(info, now, threshold) {
			continue
		}
		created, err := info.CreatedAt()
		if err != nil {
			log.Printf("invalid creation timestamp for scan %s: %v", info.Code, err)
			continue
		}
		updated, _ := info.UpdatedAt() // IsStale already validated it
		name := projectNames[info.ProjectCode]
		if name == "" {
			name = "No Project"
		}
		entries = append(entries, domain.PlanEntry{
			ProjectName:  name,
			ScanCode:     info.Code,
			ScanName:     info.Name,
			CreationDate: created,
			LastModified: updated,
			AgeDays:      int(now.Sub(updated).Hours() / 24),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ScanCode < entries[j].ScanCode })
	return domain.Plan{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		TotalScans: len(entries),
		Scans:      entries,
	}
}

// CreatePlan runs the full inventory pass and builds a plan of scans whose
// last modification is at least threshold old.
func (e Engine) CreatePlan(ctx context.Context, threshold time.Duration) (domain.Plan, error) {
	scans, err := e.ListScans(ctx)
	if err != nil {
		return domain.Plan{}, err
	}
	log.Printf("found %d total scans", len(scans))
	infos, err := e.ScanDetails(ctx, scans)
	if err != nil {
		return domain.Plan{}, err
	}
	names, err := e.projectNames(ctx, infos)
	if err != nil {
		return domain.Plan{}, err
	}
	return BuildPlan(infos, names, e.now(), threshold), nil
}

// projectNames resolves project codes to display names, one lookup per code.
// Unknown projects resolve to the empty string and render as "No Project".
func (e Engine) projectNames(ctx context.Context, infos []domain.ScanInfo) (map[string]string, error) {
	names := make(map[string]string)
	for _, info := range infos {
		code := info.ProjectCode
		if code == "" {
			continue
		}
		if _, seen := names[code]; seen {
			continue
		}
		name, err := e.API.ProjectName(ctx, code)
		switch {
		case api.IsNotFound(err):
			names[code] = ""
		case err != nil:
			return nil, fmt.Errorf("resolve project %s: %w", code, err)
		default:
			names[code] = name
		}
	}
	return names, nil
}

// SavePlan writes the plan document. Re-planning overwrites in place; the
// previous plan is not preserved.
func SavePlan(plan domain.Plan, path string) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write plan %s: %w", path, err)
	}
	log.Printf("plan saved to %s (%d scans)", path, plan.TotalScans)
	return nil
}

// LoadPlan reads and validates a previously saved plan document.
func LoadPlan(path string) (domain.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("read plan %s: %w", path, err)
	}
	var plan domain.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return domain.Plan{}, fmt.Errorf("parse plan %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return domain.Plan{}, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return plan, nil
}
