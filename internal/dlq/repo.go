package dlq

import (
	"context"
	"errors"
	"time"

	"clipqc/internal/jobs"

	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) Insert(ctx context.Context, e *Entry) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

// Get is tenant-scoped: entries of other organizations read as missing.
func (r *Repo) Get(ctx context.Context, orgID, entryID string) (*Entry, error) {
	var e Entry
	err := r.DB.WithContext(ctx).
		Where("id = ? AND organization_id = ?", entryID, orgID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repo) List(ctx context.Context, orgID, status string, limit, offset int) ([]Entry, int64, error) {
	filter := func() *gorm.DB {
		q := r.DB.WithContext(ctx).Model(&Entry{}).Where("organization_id = ?", orgID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := filter().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Entry
	if err := filter().Order("created_at desc").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *Repo) Stats(ctx context.Context, orgID string) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.DB.WithContext(ctx).Model(&Entry{}).
		Select("status, count(*) as count").
		Where("organization_id = ?", orgID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(Statuses))
	for _, s := range Statuses {
		out[s] = 0
	}
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// HasOpen reports whether the job already has an open entry.
func (r *Repo) HasOpen(ctx context.Context, sourceJobID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&Entry{}).
		Where("source_job_id = ? AND status IN ?", sourceJobID, Open).
		Count(&n).Error
	return n > 0, err
}

// MarkRetrying records a retry issued from the DLQ: status flips to
// retrying, the retry counter bumps, and the fresh job is linked.
func (r *Repo) MarkRetrying(ctx context.Context, entryID, newJobID string) error {
	return r.DB.WithContext(ctx).Model(&Entry{}).
		Where("id = ?", entryID).
		Updates(map[string]any{
			"status":      StatusRetrying,
			"retry_count": gorm.Expr("retry_count + 1"),
			"new_job_id":  newJobID,
		}).Error
}

// ReopenRetried flips the retrying entry that spawned this job back to
// pending, recording the fresh failure. Returns false when the job is not
// a tracked retry.
func (r *Repo) ReopenRetried(ctx context.Context, newJobID, kind, message string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&Entry{}).
		Where("new_job_id = ? AND status = ?", newJobID, StatusRetrying).
		Updates(map[string]any{
			"status":          StatusPending,
			"failure_kind":    kind,
			"failure_message": message,
		})
	return res.RowsAffected == 1, res.Error
}

// CloseRetried resolves the retrying entry that spawned this job.
func (r *Repo) CloseRetried(ctx context.Context, newJobID string) (bool, error) {
	now := time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&Entry{}).
		Where("new_job_id = ? AND status = ?", newJobID, StatusRetrying).
		Updates(map[string]any{
			"status":           StatusResolved,
			"resolved_by":      "system",
			"resolution_notes": "retry succeeded",
			"resolved_at":      now,
		})
	return res.RowsAffected == 1, res.Error
}

// Resolve closes an open entry. Conditional on the entry still being open
// and owned by the tenant; returns false when nothing matched.
func (r *Repo) Resolve(ctx context.Context, orgID, entryID, resolvedBy string, notes *string) (bool, error) {
	now := time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&Entry{}).
		Where("id = ? AND organization_id = ? AND status IN ?", entryID, orgID, Open).
		Updates(map[string]any{
			"status":           StatusResolved,
			"resolved_by":      resolvedBy,
			"resolution_notes": notes,
			"resolved_at":      now,
		})
	return res.RowsAffected == 1, res.Error
}

// Purge deletes the tenant's entries created before the cutoff,
// regardless of status.
func (r *Repo) Purge(ctx context.Context, orgID string, before time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("organization_id = ? AND created_at < ?", orgID, before).
		Delete(&Entry{})
	return res.RowsAffected, res.Error
}
