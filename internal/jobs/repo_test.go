package jobs_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"clipqc/internal/db"
	"clipqc/internal/jobs"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAndIndexes(gdb))
	return gdb
}

func submitJob(t *testing.T, repo *jobs.Repo, orgID, payloadRef string) string {
	t.Helper()
	intake := &jobs.Intake{Repo: repo, MaxAttempts: 3}
	id, err := intake.Submit(context.Background(), orgID, payloadRef)
	require.NoError(t, err)
	return id
}

func TestSubmitValidation(t *testing.T) {
	repo := &jobs.Repo{DB: openTestDB(t)}
	intake := &jobs.Intake{Repo: repo, MaxAttempts: 3}
	ctx := context.Background()

	_, err := intake.Submit(ctx, "org-a", "")
	require.ErrorIs(t, err, jobs.ErrInvalidRequest)

	_, err = intake.Submit(ctx, "", "delivery-1")
	require.ErrorIs(t, err, jobs.ErrInvalidRequest)

	id, err := intake.Submit(ctx, "org-a", "delivery-1")
	require.NoError(t, err)

	j, err := repo.Get(ctx, "org-a", id)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusQueued, j.Status)
	require.Equal(t, 0, j.Attempts)
	require.Equal(t, 3, j.MaxAttempts)
	require.Nil(t, j.CompletedAt)
}

func TestSubmitDoesNotDeduplicate(t *testing.T) {
	repo := &jobs.Repo{DB: openTestDB(t)}

	id1 := submitJob(t, repo, "org-a", "delivery-1")
	id2 := submitJob(t, repo, "org-a", "delivery-1")
	require.NotEqual(t, id1, id2)

	_, total, err := repo.List(context.Background(), "org-a", "", 50, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
}

func TestClaimIsExclusive(t *testing.T) {
	repo := &jobs.Repo{DB: openTestDB(t)}
	ctx := context.Background()

	id := submitJob(t, repo, "org-a", "delivery-1")

	j, err := repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, j)
	require.Equal(t, id, j.ID)
	require.Equal(t, jobs.StatusRunning, j.Status)
	require.NotNil(t, j.LockedBy)
	require.Equal(t, "worker-1", *j.LockedBy)

	// Already running: a second claim finds nothing.
	j2, err := repo.Claim(ctx, "worker-2")
	require.NoError(t, err)
	require.Nil(t, j2)
}

func TestClaimSkipsDelayedJobs(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	ctx := context.Background()

	id := submitJob(t, repo, "org-a", "delivery-1")
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, gdb.Exec(`update jobs set run_at = ? where id = ?`, future, id).Error)

	j, err := repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.Nil(t, j)
}

func TestMarkCompletedLosesToCancel(t *testing.T) {
	repo := &jobs.Repo{DB: openTestDB(t)}
	ctx := context.Background()

	id := submitJob(t, repo, "org-a", "delivery-1")
	_, err := repo.Claim(ctx, "worker-1")
	require.NoError(t, err)

	cancelled, err := repo.Cancel(ctx, "org-a", []string{id}, false)
	require.NoError(t, err)
	require.Equal(t, []string{id}, cancelled)

	// The worker finishing afterwards must not overwrite the terminal status.
	ok, err := repo.MarkCompleted(ctx, id, []byte(`{"score":97}`))
	require.NoError(t, err)
	require.False(t, ok)

	j, err := repo.Get(ctx, "org-a", id)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCancelled, j.Status)
	require.NotNil(t, j.ErrorKind)
	require.Equal(t, jobs.ErrKindCancelled, *j.ErrorKind)
}

func TestCancelAllSkipsTerminal(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	ctx := context.Background()

	queued := submitJob(t, repo, "org-a", "delivery-1")
	running := submitJob(t, repo, "org-a", "delivery-2")
	completed := submitJob(t, repo, "org-a", "delivery-3")

	require.NoError(t, gdb.Exec(`update jobs set status = ? where id = ?`, jobs.StatusRunning, running).Error)
	require.NoError(t, gdb.Exec(`update jobs set status = ? where id = ?`, jobs.StatusCompleted, completed).Error)

	cancelled, err := repo.Cancel(ctx, "org-a", nil, true)
	require.NoError(t, err)
	require.Len(t, cancelled, 2)
	require.Contains(t, cancelled, queued)
	require.Contains(t, cancelled, running)

	done, err := repo.Get(ctx, "org-a", completed)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCompleted, done.Status)

	// Idempotent: nothing left to cancel.
	again, err := repo.Cancel(ctx, "org-a", nil, true)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestCancelIsTenantScoped(t *testing.T) {
	repo := &jobs.Repo{DB: openTestDB(t)}
	ctx := context.Background()

	id := submitJob(t, repo, "org-a", "delivery-1")

	// org-b supplies org-a's job ID directly; nothing may change.
	cancelled, err := repo.Cancel(ctx, "org-b", []string{id}, false)
	require.NoError(t, err)
	require.Empty(t, cancelled)

	j, err := repo.Get(ctx, "org-a", id)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusQueued, j.Status)
}

func TestGetIsTenantScoped(t *testing.T) {
	repo := &jobs.Repo{DB: openTestDB(t)}
	ctx := context.Background()

	id := submitJob(t, repo, "org-a", "delivery-1")

	_, err := repo.Get(ctx, "org-b", id)
	require.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	repo := &jobs.Repo{DB: openTestDB(t)}
	ctx := context.Background()

	submitJob(t, repo, "org-a", "delivery-1")
	submitJob(t, repo, "org-a", "delivery-2")
	j, err := repo.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, j)

	queued, total, err := repo.List(ctx, "org-a", jobs.StatusQueued, 50, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, queued, 1)

	all, total, err := repo.List(ctx, "org-a", "", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, all, 1) // paginated
}
