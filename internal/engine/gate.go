package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"scansweep/internal/api"
)

// GateResult is what a post-scan gate found. An empty result means the scan
// is clear to proceed.
type GateResult struct {
	ScanURL        string
	PendingLink    string
	PolicyLink     string
	PendingFiles   []string
	PolicyWarnings []api.PolicyWarning
}

// Clean reports whether the gate passed.
func (r GateResult) Clean() bool {
	return len(r.PendingFiles) == 0 && len(r.PolicyWarnings) == 0
}

// Gate waits for the scan to finish, then checks for files pending
// identification and, when policyCheck is set, for policy violations.
func (e Engine) Gate(ctx context.Context, scanCode string, policyCheck bool) (GateResult, error) {
	info, err := e.API.ScanInfo(ctx, scanCode)
	if err != nil {
		return GateResult{}, fmt.Errorf("look up scan %s: %w", scanCode, err)
	}
	base := e.API.UIBase()
	result := GateResult{
		ScanURL:     fmt.Sprintf("%s/index.html?form=main_interface&action=scanview&sid=%s", base, info.ID),
		PendingLink: fmt.Sprintf("%s/index.html?form=main_interface&action=scanview&sid=%s&current_view=pending_items", base, info.ID),
		PolicyLink:  fmt.Sprintf("%s/index.html?form=main_interface&action=scanview&sid=%s&current_view=mark_as_identified", base, info.ID),
	}

	if err := e.WaitForScan(ctx, scanCode); err != nil {
		return result, err
	}

	log.Printf("checking for files pending identification...")
	pending, err := e.API.PendingFiles(ctx, scanCode)
	if err != nil {
		return result, fmt.Errorf("pending files for scan %s: %w", scanCode, err)
	}
	for _, name := range pending {
		result.PendingFiles = append(result.PendingFiles, name)
	}
	sort.Strings(result.PendingFiles)

	if policyCheck {
		log.Printf("checking for policy warnings...")
		warnings, err := e.API.PolicyWarnings(ctx, scanCode)
		if err != nil {
			return result, fmt.Errorf("policy warnings for scan %s: %w", scanCode, err)
		}
		result.PolicyWarnings = warnings
	}
	return result, nil
}
