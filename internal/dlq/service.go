package dlq

import (
	"context"
	"fmt"
	"log"
	"time"

	"clipqc/internal/jobs"

	"github.com/google/uuid"
)

// Service is the operator-facing surface over dead-lettered jobs:
// push (from the processor/reaper), retry, resolve, purge, stats.
type Service struct {
	Repo   *Repo
	Jobs   *jobs.Repo
	Intake *jobs.Intake
}

// Push dead-letters a terminally failed job. A job minted by a DLQ retry
// re-opens the entry that spawned it instead of stacking a second one.
// Otherwise at most one open entry exists per job: pushing again while one
// is open is a no-op. The partial unique index on dlq_entries backs this
// up under concurrency.
func (s *Service) Push(ctx context.Context, j *jobs.Job, kind, message string) error {
	reopened, err := s.Repo.ReopenRetried(ctx, j.ID, kind, message)
	if err != nil {
		return err
	}
	if reopened {
		return nil
	}

	open, err := s.Repo.HasOpen(ctx, j.ID)
	if err != nil {
		return err
	}
	if open {
		return nil
	}

	e := &Entry{
		ID:             uuid.NewString(),
		SourceJobID:    j.ID,
		OrganizationID: j.OrganizationID,
		Status:         StatusPending,
		FailureKind:    kind,
		FailureMessage: message,
		CreatedAt:      time.Now().UTC(),
	}
	return s.Repo.Insert(ctx, e)
}

// RetryOutcome reports what a retry did, or — for a dry run — would do.
type RetryOutcome struct {
	DryRun   bool
	NewJobID string
	Message  string
}

// Retry re-submits the source job's payload as a brand-new job. With
// dryRun the same validation runs but nothing is created or mutated, so
// an operator can preview the retry safely.
func (s *Service) Retry(ctx context.Context, orgID, entryID string, dryRun bool) (*RetryOutcome, error) {
	if entryID == "" {
		return nil, fmt.Errorf("%w: entry id required", jobs.ErrInvalidRequest)
	}

	e, err := s.Repo.Get(ctx, orgID, entryID)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusPending && e.Status != StatusRetrying {
		return nil, fmt.Errorf("%w: entry is %s", jobs.ErrInvalidRequest, e.Status)
	}

	// The payload must still be retrievable through the source job.
	src, err := s.Jobs.Get(ctx, orgID, e.SourceJobID)
	if err != nil {
		return nil, fmt.Errorf("%w: source job %s is gone", jobs.ErrInvalidRequest, e.SourceJobID)
	}
	if src.PayloadRef == "" {
		return nil, fmt.Errorf("%w: source job has no payload reference", jobs.ErrInvalidRequest)
	}

	if dryRun {
		return &RetryOutcome{
			DryRun:  true,
			Message: fmt.Sprintf("would re-enqueue payload %s as a new job", src.PayloadRef),
		}, nil
	}

	newJobID, err := s.Intake.Submit(ctx, orgID, src.PayloadRef)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.MarkRetrying(ctx, e.ID, newJobID); err != nil {
		// The new job is already queued; losing the bookkeeping must not
		// hide it from the operator.
		log.Printf("[dlq] mark entry %s retrying: %v\n", e.ID, err)
		return &RetryOutcome{
			NewJobID: newJobID,
			Message:  "re-enqueued as job " + newJobID + " (entry update failed)",
		}, nil
	}

	return &RetryOutcome{
		NewJobID: newJobID,
		Message:  "re-enqueued as job " + newJobID,
	}, nil
}

// Resolve marks an open entry as handled by an operator.
func (s *Service) Resolve(ctx context.Context, orgID, entryID, resolvedBy, notes string) error {
	if entryID == "" || resolvedBy == "" {
		return fmt.Errorf("%w: entry id and resolver required", jobs.ErrInvalidRequest)
	}

	e, err := s.Repo.Get(ctx, orgID, entryID)
	if err != nil {
		return err
	}
	if e.Status != StatusPending && e.Status != StatusRetrying {
		return fmt.Errorf("%w: entry is %s", jobs.ErrInvalidRequest, e.Status)
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}
	ok, err := s.Repo.Resolve(ctx, orgID, entryID, resolvedBy, notesPtr)
	if err != nil {
		return err
	}
	if !ok {
		return jobs.ErrNotFound
	}
	return nil
}

// CloseRetried resolves the entry whose retry this job fulfilled.
// A no-op for jobs that did not come out of the DLQ.
func (s *Service) CloseRetried(ctx context.Context, jobID string) error {
	_, err := s.Repo.CloseRetried(ctx, jobID)
	return err
}

// Purge deletes the tenant's entries older than the threshold, whatever
// their status. The failed job rows survive; only the operator bookmarks
// go. Privileged: callers gate this on the admin tier.
func (s *Service) Purge(ctx context.Context, orgID string, olderThanDays int) (int64, error) {
	if olderThanDays < 1 {
		return 0, fmt.Errorf("%w: olderThanDays must be at least 1", jobs.ErrInvalidRequest)
	}
	before := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	return s.Repo.Purge(ctx, orgID, before)
}

func (s *Service) List(ctx context.Context, orgID, status string, limit, offset int) ([]Entry, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.List(ctx, orgID, status, limit, offset)
}

func (s *Service) Stats(ctx context.Context, orgID string) (map[string]int64, error) {
	return s.Repo.Stats(ctx, orgID)
}
