package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"scansweep/internal/api"
	"scansweep/internal/domain"
)

const recordsPerPage = 500

// ListScans pages through the complete scan listing. A failure mid-stream is
// propagated rather than returning a silently truncated list.
func (e Engine) ListScans(ctx context.Context) ([]domain.Scan, error) {
	var all []domain.Scan
	for page := 1; ; page++ {
		scans, err := e.API.ListScans(ctx, page, recordsPerPage)
		if err != nil {
			return nil, fmt.Errorf("list scans page %d: %w", page, err)
		}
		if len(scans) == 0 {
			break
		}
		all = append(all, scans...)
		log.Printf("retrieved %d scans so far...", len(all))
		if len(scans) < recordsPerPage {
			break
		}
	}
	return all, nil
}

// ScanDetails looks up the full record for each scan with a bounded worker
// pool. Output order matches input order. Individual lookup failures are
// logged and skipped; an authentication failure aborts the whole fetch.
func (e Engine) ScanDetails(ctx context.Context, scans []domain.Scan) ([]domain.ScanInfo, error) {
	results := make([]domain.ScanInfo, len(scans))
	ok := make([]bool, len(scans))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatal error
	var fatalOnce sync.Once
	sem := make(chan struct{}, e.workers())
	var wg sync.WaitGroup
	for i, scan := range scans {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, scan domain.Scan) {
			defer wg.Done()
			defer func() { <-sem }()
			info, err := e.API.ScanInfo(ctx, scan.Code)
			if err != nil {
				var authErr *api.AuthError
				if errors.As(err, &authErr) {
					fatalOnce.Do(func() {
						fatal = err
						cancel()
					})
					return
				}
				log.Printf("failed to fetch scan info for %s: %v", scan.Code, err)
				return
			}
			results[i] = info
			ok[i] = true
		}(i, scan)
	}
	wg.Wait()
	if fatal != nil {
		return nil, fatal
	}
	infos := make([]domain.ScanInfo, 0, len(scans))
	for i := range results {
		if ok[i] {
			infos = append(infos, results[i])
		}
	}
	return infos, nil
}

// IsStale reports whether a scan is eligible for archiving: last modified at
// least threshold ago and not already archived. Staleness of an archived scan
// is vacuously false so a plan can never double-archive.
func IsStale(info domain.ScanInfo, now time.Time, threshold time.Duration) bool {
	if bool(info.IsArchived) {
		return false
	}
	updated, err := info.UpdatedAt()
	if err != nil {
		log.Printf("invalid last-modified timestamp for scan %s: %v", info.Code, err)
		return false
	}
	return now.Sub(updated) >= threshold
}
