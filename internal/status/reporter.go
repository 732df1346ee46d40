// Package status aggregates component states into one operator-facing view.
package status

import (
	"time"

	"github.com/merchhub/tokensync/internal/browser"
	"github.com/merchhub/tokensync/internal/credential"
	"github.com/merchhub/tokensync/internal/scheduler"
)

// Report is the combined service status. It only reads component snapshots;
// nothing in here mutates state or exposes token material.
type Report struct {
	Service       string            `json:"service"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Credential    credential.Status `json:"credential"`
	Scheduler     scheduler.Status  `json:"scheduler"`
	Pool          browser.Stats     `json:"pool"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Update is one message on the live status feed: the event that triggered
// the push plus a full report taken right after it.
type Update struct {
	Event  string `json:"event"`
	Report Report `json:"report"`
}

// Reporter builds reports from the live components.
type Reporter struct {
	store     *credential.Store
	scheduler *scheduler.Scheduler
	pool      *browser.Pool
	startedAt time.Time

	now func() time.Time
}

func NewReporter(store *credential.Store, sched *scheduler.Scheduler, pool *browser.Pool) *Reporter {
	return &Reporter{
		store:     store,
		scheduler: sched,
		pool:      pool,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Report snapshots every component as of now.
func (r *Reporter) Report() Report {
	now := r.now()
	return Report{
		Service:       "tokensync",
		UptimeSeconds: int64(now.Sub(r.startedAt).Seconds()),
		Credential:    r.store.Status(),
		Scheduler:     r.scheduler.Status(),
		Pool:          r.pool.Stats(),
		Timestamp:     now.UTC(),
	}
}
