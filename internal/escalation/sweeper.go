// Package escalation implements the SLA sweep: a recurring job that finds
// open cases whose deadline lapsed and advances each one level up the
// authority chain.
package escalation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// CaseStore is the slice of the case repository the sweeper needs. The
// store owns all locking: EscalateExpired re-verifies status, level and
// deadline under a row lock and reports false when the case was skipped.
type CaseStore interface {
	ExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	EscalateExpired(ctx context.Context, caseID uint64, now time.Time) (bool, error)
}

// Result summarizes one sweep pass.
type Result struct {
	Candidates int // expired cases found by the scan
	Escalated  int // cases actually advanced a level
	Skipped    int // candidates resolved or locked by someone else first
	Errors     int // candidates that failed with a store error
}

// Sweeper drives the periodic escalation pass. Running two sweepers against
// the same database is safe: the store's locking makes each expired case
// advance exactly once.
type Sweeper struct {
	store     CaseStore
	batchSize int

	// OnEscalated, when set, is called after each successful escalation.
	// Used to publish case events; failures inside the hook are the
	// hook's own problem.
	OnEscalated func(ctx context.Context, caseID uint64)
}

// NewSweeper returns a sweeper processing up to batchSize cases per pass.
func NewSweeper(store CaseStore, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Sweeper{store: store, batchSize: batchSize}
}

// RunOnce executes a single sweep pass at the given instant. Each candidate
// gets its own error boundary: one bad row never stops the rest of the
// batch. The pass is idempotent, an immediate re-run finds nothing left to
// do because every escalated case received a fresh deadline.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) Result {
	var res Result

	ids, err := s.store.ExpiredCandidates(ctx, now, s.batchSize)
	if err != nil {
		log.Printf("[escalation] candidate scan failed: %v", err)
		res.Errors++
		return res
	}
	res.Candidates = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return res
		}
		escalated, err := s.store.EscalateExpired(ctx, id, now)
		if err != nil {
			log.Printf("[escalation] case %d: escalate failed: %v", id, err)
			res.Errors++
			continue
		}
		if !escalated {
			res.Skipped++
			continue
		}
		res.Escalated++
		if s.OnEscalated != nil {
			s.OnEscalated(ctx, id)
		}
	}

	if res.Escalated > 0 || res.Errors > 0 {
		log.Printf("[escalation] sweep done: candidates=%d escalated=%d skipped=%d errors=%d",
			res.Candidates, res.Escalated, res.Skipped, res.Errors)
	}
	return res
}

// Start schedules RunOnce at the given interval and returns the running
// scheduler. The caller stops it with cron.Stop() on shutdown.
func (s *Sweeper) Start(interval time.Duration) (*cron.Cron, error) {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		s.RunOnce(ctx, time.Now().UTC())
	}); err != nil {
		return nil, err
	}
	c.Start()
	log.Printf("[escalation] sweep scheduled every %s", interval)
	return c, nil
}
