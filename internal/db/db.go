package db

import (
	"fmt"

	"clipqc/internal/dlq"
	"clipqc/internal/jobs"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&jobs.Job{},
		&dlq.Entry{},
	); err != nil {
		return err
	}

	// At most one open DLQ entry per source job. Partial unique index so
	// resolved/abandoned history does not block re-dead-lettering a retried job.
	if err := gdb.Exec(`
create unique index if not exists uq_dlq_open_source
on dlq_entries(source_job_id)
where status in ('pending', 'retrying');
`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_jobs_org_status on jobs(organization_id, status);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_stale on jobs(status, updated_at);`,
		`create index if not exists idx_dlq_org_created on dlq_entries(organization_id, created_at desc);`,
		`create index if not exists idx_dlq_org_status on dlq_entries(organization_id, status);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
