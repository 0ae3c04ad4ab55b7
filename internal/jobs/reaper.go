package jobs

import (
	"context"
	"log"
	"time"
)

// Reaper is the safety net against jobs stuck in a pre-terminal status:
// a crashed worker leaves its job running until the sweep reclaims it.
// Reaped jobs are force-failed with a Timeout error and dead-lettered so
// operators recover them the same way as processor-detected failures.
type Reaper struct {
	Repo       *Repo
	DLQ        DeadLetterer
	StaleAfter time.Duration
	Interval   time.Duration
}

const sweepBatch = 500

// Run sweeps on a fixed schedule until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				log.Printf("[reaper] sweep error: %v\n", err)
				continue
			}
			if n > 0 {
				log.Printf("[reaper] reaped %d stale jobs\n", n)
			}
		}
	}
}

// Sweep force-fails every pre-terminal job untouched for longer than
// StaleAfter. Safe to re-run: reaped jobs are terminal and no longer match.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	staleAfter := r.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-staleAfter)

	reaped := 0
	for {
		stale, err := r.Repo.FindStale(ctx, cutoff, sweepBatch)
		if err != nil {
			return reaped, err
		}
		if len(stale) == 0 {
			return reaped, nil
		}

		for i := range stale {
			j := &stale[i]
			ok, err := r.Repo.MarkTimedOut(ctx, j.ID)
			if err != nil {
				return reaped, err
			}
			if !ok {
				continue // finished or cancelled since the scan
			}
			reaped++

			if r.DLQ != nil {
				if err := r.DLQ.Push(ctx, j, ErrKindTimeout, "Processing/upload timed out"); err != nil {
					log.Printf("[reaper] dead-letter job %s: %v\n", j.ID, err)
				}
			}
		}

		if len(stale) < sweepBatch {
			return reaped, nil
		}
	}
}
