package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) Create(ctx context.Context, j *Job) error {
	return r.DB.WithContext(ctx).Create(j).Error
}

// Get is tenant-scoped: a job belonging to another organization is
// indistinguishable from a missing one.
func (r *Repo) Get(ctx context.Context, orgID, jobID string) (*Job, error) {
	var j Job
	err := r.DB.WithContext(ctx).
		Where("id = ? AND organization_id = ?", jobID, orgID).
		First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) List(ctx context.Context, orgID, status string, limit, offset int) ([]Job, int64, error) {
	filter := func() *gorm.DB {
		q := r.DB.WithContext(ctx).Model(&Job{}).Where("organization_id = ?", orgID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := filter().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Job
	if err := filter().Order("created_at desc").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Claim picks one due queued job and flips it to running. The flip is a
// conditional update keyed on the old status, so two workers racing for
// the same row cannot both win; the loser just moves to the next candidate.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	now := time.Now().UTC()

	var candidates []string
	err := r.DB.WithContext(ctx).Model(&Job{}).
		Where("status = ? AND run_at <= ?", StatusQueued, now).
		Order("run_at asc").
		Limit(5).
		Pluck("id", &candidates).Error
	if err != nil {
		return nil, err
	}

	for _, id := range candidates {
		res := r.DB.WithContext(ctx).Model(&Job{}).
			Where("id = ? AND status = ?", id, StatusQueued).
			Updates(map[string]any{
				"status":     StatusRunning,
				"locked_by":  workerID,
				"locked_at":  now,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue // lost the race, try the next one
		}

		var j Job
		if err := r.DB.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &j, nil
	}
	return nil, nil
}

// MarkCompleted finishes a running job. Returns false when the job is no
// longer running (e.g. cancelled mid-flight), in which case the terminal
// status is left untouched.
func (r *Repo) MarkCompleted(ctx context.Context, jobID string, result []byte) (bool, error) {
	now := time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, StatusRunning).
		Updates(map[string]any{
			"status":       StatusCompleted,
			"result":       result,
			"locked_by":    nil,
			"locked_at":    nil,
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected == 1, res.Error
}

// RetryLater requeues a running job after a transient failure. The last
// error stays visible on the row while the job waits for its next attempt.
func (r *Repo) RetryLater(ctx context.Context, jobID string, attempts int, runAt time.Time, kind, message string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, StatusRunning).
		Updates(map[string]any{
			"status":        StatusQueued,
			"attempts":      attempts,
			"run_at":        runAt,
			"error_kind":    kind,
			"error_message": message,
			"locked_by":     nil,
			"locked_at":     nil,
			"updated_at":    time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// MarkFailed terminally fails a running job.
func (r *Repo) MarkFailed(ctx context.Context, jobID string, attempts int, kind, message string) (bool, error) {
	now := time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, StatusRunning).
		Updates(map[string]any{
			"status":        StatusFailed,
			"attempts":      attempts,
			"error_kind":    kind,
			"error_message": message,
			"locked_by":     nil,
			"locked_at":     nil,
			"completed_at":  now,
			"updated_at":    now,
		})
	return res.RowsAffected == 1, res.Error
}

// Cancel flips the selected pre-terminal jobs to cancelled and returns the
// IDs that actually changed. Already-terminal jobs are silently excluded,
// so cancelling twice is a no-op, not an error. With all=true the job ID
// filter is ignored and every cancellable job of the tenant is selected.
func (r *Repo) Cancel(ctx context.Context, orgID string, jobIDs []string, all bool) ([]string, error) {
	q := r.DB.WithContext(ctx).Model(&Job{}).
		Where("organization_id = ? AND status IN ?", orgID, PreTerminal)
	if !all {
		if len(jobIDs) == 0 {
			return []string{}, nil
		}
		q = q.Where("id IN ?", jobIDs)
	}

	var candidates []string
	if err := q.Pluck("id", &candidates).Error; err != nil {
		return nil, err
	}

	cancelled := make([]string, 0, len(candidates))
	now := time.Now().UTC()
	for _, id := range candidates {
		// Re-check the status in the update itself: a job completing
		// between select and update keeps its result.
		res := r.DB.WithContext(ctx).Model(&Job{}).
			Where("id = ? AND status IN ?", id, PreTerminal).
			Updates(map[string]any{
				"status":        StatusCancelled,
				"error_kind":    ErrKindCancelled,
				"error_message": "Cancelled by user",
				"locked_by":     nil,
				"locked_at":     nil,
				"completed_at":  now,
				"updated_at":    now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled, nil
}

func (r *Repo) ListCancellable(ctx context.Context, orgID string) ([]Job, error) {
	var rows []Job
	err := r.DB.WithContext(ctx).
		Where("organization_id = ? AND status IN ?", orgID, PreTerminal).
		Order("created_at asc").
		Find(&rows).Error
	return rows, err
}

// FindStale returns pre-terminal jobs untouched since before the cutoff.
// Crosses tenants on purpose: the reaper is a system sweep, not a client call.
func (r *Repo) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	var rows []Job
	err := r.DB.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", PreTerminal, cutoff).
		Order("updated_at asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkTimedOut force-fails a stale job. Conditional on the job still being
// pre-terminal, so a sweep re-run cannot touch already-reaped jobs.
func (r *Repo) MarkTimedOut(ctx context.Context, jobID string) (bool, error) {
	now := time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", jobID, PreTerminal).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_kind":    ErrKindTimeout,
			"error_message": "Processing/upload timed out",
			"locked_by":     nil,
			"locked_at":     nil,
			"completed_at":  now,
			"updated_at":    now,
		})
	return res.RowsAffected == 1, res.Error
}
