// Package poll drives asynchronous server-side jobs to a terminal state.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"scansweep/internal/api"
	"scansweep/internal/domain"
)

// CheckFunc queries the current status of one job.
type CheckFunc func(ctx context.Context) (domain.JobStatus, error)

// TimeoutError is returned when a job does not reach a terminal state within
// the configured budget. It is never silently treated as success.
type TimeoutError struct {
	Elapsed    time.Duration
	Tries      int
	LastStatus string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job still %q after %s (%d status checks)", e.LastStatus, e.Elapsed.Round(time.Second), e.Tries)
}

// Poller repeatedly checks a job until it finishes, fails, or the wait budget
// runs out. Waits between in-progress checks use the fixed Interval;
// consecutive transient gateway failures back off exponentially and abort
// after TransientRetries so a dead server is not mistaken for a slow job.
type Poller struct {
	Interval         time.Duration
	MaxWait          time.Duration // zero disables the elapsed-time budget
	MaxTries         int           // zero disables the try-count budget
	TransientRetries int

	// Sleep and Now are injectable for deterministic tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// New returns a poller with the default transient budget.
func New(interval, maxWait time.Duration) Poller {
	return Poller{
		Interval:         interval,
		MaxWait:          maxWait,
		TransientRetries: 3,
	}
}

// Wait polls check until the job is terminal. A finished or failed status is
// returned with a nil error; the caller inspects which it was. An empty or
// ambiguous status counts as still running: absence of evidence of completion
// is never completion.
func (p Poller) Wait(ctx context.Context, check CheckFunc) (domain.JobStatus, error) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 2 * time.Second
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	budget := p.TransientRetries
	if budget <= 0 {
		budget = 3
	}

	start := p.now()
	tries := 0
	consecutive := 0
	var last domain.JobStatus
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		// The in-flight request is allowed to finish even if the caller is
		// interrupted; only the waits below react to cancellation.
		st, err := check(context.WithoutCancel(ctx))
		tries++
		if err != nil {
			if !api.IsTransient(err) {
				return last, err
			}
			consecutive++
			if consecutive >= budget {
				return last, fmt.Errorf("aborting after %d consecutive transient failures: %w", consecutive, err)
			}
			if err := p.sleep(ctx, p.nextRetry(retry)); err != nil {
				return last, err
			}
			continue
		}
		consecutive = 0
		retry.Reset()
		last = st
		if st.Terminal() {
			return st, nil
		}
		elapsed := p.now().Sub(start)
		if p.MaxWait > 0 && elapsed >= p.MaxWait {
			return last, &TimeoutError{Elapsed: elapsed, Tries: tries, LastStatus: st.Status}
		}
		if p.MaxTries > 0 && tries >= p.MaxTries {
			return last, &TimeoutError{Elapsed: elapsed, Tries: tries, LastStatus: st.Status}
		}
		if err := p.sleep(ctx, p.Interval); err != nil {
			return last, err
		}
	}
}

func (p Poller) nextRetry(retry backoff.BackOff) time.Duration {
	d := retry.NextBackOff()
	if d == backoff.Stop {
		d = p.Interval
	}
	return d
}

func (p Poller) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
