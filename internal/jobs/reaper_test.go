package jobs_test

import (
	"context"
	"testing"
	"time"

	"clipqc/internal/dlq"
	"clipqc/internal/jobs"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func backdate(t *testing.T, gdb *gorm.DB, jobID string, age time.Duration) {
	t.Helper()
	old := time.Now().UTC().Add(-age)
	require.NoError(t, gdb.Exec(`update jobs set updated_at = ? where id = ?`, old, jobID).Error)
}

func TestReaperSweep(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	intake := &jobs.Intake{Repo: repo, MaxAttempts: 3}
	dlqSvc := &dlq.Service{Repo: &dlq.Repo{DB: gdb}, Jobs: repo, Intake: intake}
	reaper := &jobs.Reaper{Repo: repo, DLQ: dlqSvc, StaleAfter: 24 * time.Hour}
	ctx := context.Background()

	stale := submitJob(t, repo, "org-a", "delivery-1")
	fresh := submitJob(t, repo, "org-a", "delivery-2")
	staleRunning := submitJob(t, repo, "org-b", "delivery-3")
	require.NoError(t, gdb.Exec(`update jobs set status = ? where id = ?`, jobs.StatusRunning, staleRunning).Error)

	backdate(t, gdb, stale, 48*time.Hour)
	backdate(t, gdb, staleRunning, 30*time.Hour)

	n, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, tc := range []struct{ org, id string }{
		{"org-a", stale},
		{"org-b", staleRunning},
	} {
		j, err := repo.Get(ctx, tc.org, tc.id)
		require.NoError(t, err)
		require.Equal(t, jobs.StatusFailed, j.Status)
		require.NotNil(t, j.ErrorKind)
		require.Equal(t, jobs.ErrKindTimeout, *j.ErrorKind)
		require.NotNil(t, j.CompletedAt)
		require.EqualValues(t, 1, openDLQCount(t, gdb, tc.id))
	}

	// The fresh job is untouched.
	j, err := repo.Get(ctx, "org-a", fresh)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusQueued, j.Status)

	// Re-running the sweep is a no-op: reaped jobs are terminal now.
	n, err = reaper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReaperLeavesTerminalJobsAlone(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	reaper := &jobs.Reaper{Repo: repo, StaleAfter: 24 * time.Hour}
	ctx := context.Background()

	done := submitJob(t, repo, "org-a", "delivery-1")
	require.NoError(t, gdb.Exec(`update jobs set status = ? where id = ?`, jobs.StatusCompleted, done).Error)
	backdate(t, gdb, done, 72*time.Hour)

	n, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	j, err := repo.Get(ctx, "org-a", done)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCompleted, j.Status)
}
