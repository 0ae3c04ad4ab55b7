package jobs

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"clipqc/internal/analysis"
)

// DeadLetterer records a terminally failed job for operator recovery and
// closes the originating entry when a retried job comes good. Implemented
// by the dlq service; an interface here keeps the dependency pointing one way.
type DeadLetterer interface {
	Push(ctx context.Context, j *Job, kind, message string) error
	CloseRetried(ctx context.Context, jobID string) error
}

// Worker claims queued jobs one at a time and runs them through the
// analyzer. Execution errors never propagate anywhere: they always end as
// a requeue, a failed status, or a DLQ entry.
type Worker struct {
	ID           string
	Repo         *Repo
	Execute      analysis.Func
	DLQ          DeadLetterer
	PollInterval time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] shutting down\n", w.ID)
			return
		case <-ticker.C:
			for {
				claimed, err := w.ProcessOne(ctx)
				if err != nil {
					log.Printf("[%s] process error: %v\n", w.ID, err)
					break
				}
				if !claimed {
					break // queue drained, back to polling
				}
			}
		}
	}
}

// ProcessOne claims and executes a single due job. Returns false when
// nothing was claimable.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	j, err := w.Repo.Claim(ctx, w.ID)
	if err != nil {
		return false, err
	}
	if j == nil {
		return false, nil
	}
	w.handle(ctx, j)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, j *Job) {
	result, execErr := w.Execute(ctx, j.PayloadRef)

	if execErr == nil {
		ok, err := w.Repo.MarkCompleted(ctx, j.ID, result)
		if err != nil {
			log.Printf("[%s] complete job %s: %v\n", w.ID, j.ID, err)
			return
		}
		if !ok {
			// Cancelled while we were executing; the terminal status wins.
			log.Printf("[%s] job %s no longer running, dropping result\n", w.ID, j.ID)
			return
		}
		if w.DLQ != nil {
			// If this job was minted by a DLQ retry, its entry is done.
			if err := w.DLQ.CloseRetried(ctx, j.ID); err != nil {
				log.Printf("[%s] close dlq entry for job %s: %v\n", w.ID, j.ID, err)
			}
		}
		return
	}

	attempts := j.Attempts + 1
	kind := analysis.Kind(execErr)
	msg := execErr.Error()

	if analysis.IsTransient(execErr) && attempts < j.MaxAttempts {
		delay := backoff(attempts)
		log.Printf("[%s] job %s failed (%s), retrying in %v (attempt %d/%d)\n",
			w.ID, j.ID, kind, delay, attempts, j.MaxAttempts)
		if _, err := w.Repo.RetryLater(ctx, j.ID, attempts, time.Now().UTC().Add(delay), kind, msg); err != nil {
			log.Printf("[%s] requeue job %s: %v\n", w.ID, j.ID, err)
		}
		return
	}

	ok, err := w.Repo.MarkFailed(ctx, j.ID, attempts, kind, msg)
	if err != nil {
		log.Printf("[%s] fail job %s: %v\n", w.ID, j.ID, err)
		return
	}
	if !ok {
		return // cancelled mid-flight, nothing to dead-letter
	}
	log.Printf("[%s] job %s failed terminally (%s) after %d attempts\n", w.ID, j.ID, kind, attempts)

	if w.DLQ != nil {
		if err := w.DLQ.Push(ctx, j, kind, msg); err != nil {
			log.Printf("[%s] dead-letter job %s: %v\n", w.ID, j.ID, err)
		}
	}
}

func backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	return time.Duration(sec) * time.Second
}

// StartPool launches count workers polling the store. Callers cancel the
// context to stop and wait on wg to drain in-flight jobs.
func StartPool(ctx context.Context, wg *sync.WaitGroup, count int, repo *Repo, execute analysis.Func, dlq DeadLetterer, pollInterval time.Duration) {
	for i := 1; i <= count; i++ {
		w := &Worker{
			ID:           fmt.Sprintf("worker-%d", i),
			Repo:         repo,
			Execute:      execute,
			DLQ:          dlq,
			PollInterval: pollInterval,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
}
