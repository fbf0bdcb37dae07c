// Package engine orchestrates the scan maintenance flows: inventory and
// staleness planning, plan execution, report generation, dependency-analysis
// import and post-scan gates.
package engine

import (
	"time"

	"scansweep/internal/api"
	"scansweep/internal/poll"
)

type Engine struct {
	API     *api.Client
	Poll    poll.Poller
	Workers int
	Now     func() time.Time
}

func New(client *api.Client) Engine {
	return Engine{
		API:     client,
		Poll:    poll.New(30*time.Second, time.Hour),
		Workers: 15,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return 15
}
