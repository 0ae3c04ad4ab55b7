package jobs

import "time"

// Job statuses. queued/pending/running are pre-terminal; completed,
// failed and cancelled are terminal and never left again (a DLQ retry
// creates a new job instead of mutating the old one).
const (
	StatusQueued    = "queued"
	StatusPending   = "pending" // set by the upload pipeline ahead of intake
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// PreTerminal lists the statuses a job can still be cancelled or reaped from.
var PreTerminal = []string{StatusQueued, StatusPending, StatusRunning}

// Error kinds stamped by this subsystem itself. Kinds from the analyzer
// boundary (Network, Unavailable, Validation, ...) pass through as-is.
const (
	ErrKindCancelled = "Cancelled"
	ErrKindTimeout   = "Timeout"
)

type Job struct {
	ID             string `gorm:"primaryKey"`
	OrganizationID string `gorm:"index;not null"`

	Status     string `gorm:"index;not null;default:'queued'"`
	PayloadRef string `gorm:"type:text;not null"`

	Result       []byte  `gorm:"type:jsonb"`
	ErrorKind    *string `gorm:"type:text"`
	ErrorMessage *string `gorm:"type:text"`

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:3"`

	// RunAt delays retried jobs; claiming only considers jobs due now.
	RunAt time.Time `gorm:"index;not null"`

	LockedBy *string    `gorm:"type:text"`
	LockedAt *time.Time

	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
	CompletedAt *time.Time
}
