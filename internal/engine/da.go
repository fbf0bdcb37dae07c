package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"scansweep/internal/domain"
)

// ImportDependencyResults uploads an analyzer result file to a scan, triggers
// an import-only dependency analysis run, and polls it to completion.
func (e Engine) ImportDependencyResults(ctx context.Context, scanCode, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	log.Printf("uploading %s to scan %s...", filepath.Base(filePath), scanCode)
	if err := e.API.UploadDependencyResults(ctx, scanCode, filepath.Base(filePath), f); err != nil {
		return fmt.Errorf("upload %s: %w", filePath, err)
	}

	log.Printf("starting dependency analysis import...")
	if err := e.API.RunDependencyAnalysis(ctx, scanCode, true); err != nil {
		return fmt.Errorf("start import for scan %s: %w", scanCode, err)
	}

	st, err := e.Poll.Wait(ctx, func(ctx context.Context) (domain.JobStatus, error) {
		return e.API.CheckStatus(ctx, scanCode, "", "DEPENDENCY_ANALYSIS")
	})
	if err != nil {
		return fmt.Errorf("waiting for import: %w", err)
	}
	if st.Failed() {
		return fmt.Errorf("dependency analysis failed: %s", st.Message)
	}
	log.Printf("dependency analysis import completed")
	return nil
}
