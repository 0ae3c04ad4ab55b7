package dlq

import "time"

// Entry statuses. pending and retrying entries are "open": they still
// need operator attention. resolved and abandoned entries are history.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusResolved  = "resolved"
	StatusAbandoned = "abandoned"
)

var Statuses = []string{StatusPending, StatusRetrying, StatusResolved, StatusAbandoned}

// Open lists the statuses an entry can still be retried or resolved from.
var Open = []string{StatusPending, StatusRetrying}

// Entry records a job that failed terminally and awaits manual
// intervention. Retrying an entry never touches the source job: it mints
// a brand-new job and links it via NewJobID.
type Entry struct {
	ID             string `gorm:"primaryKey"`
	SourceJobID    string `gorm:"index;not null"`
	OrganizationID string `gorm:"index;not null"`

	Status string `gorm:"index;not null;default:'pending'"`

	FailureKind    string `gorm:"type:text;not null"`
	FailureMessage string `gorm:"type:text;not null"`

	// RetryCount counts retries issued from the DLQ, distinct from the
	// source job's own attempt counter.
	RetryCount int     `gorm:"not null;default:0"`
	NewJobID   *string `gorm:"type:text"`

	ResolvedBy      *string `gorm:"type:text"`
	ResolutionNotes *string `gorm:"type:text"`
	ResolvedAt      *time.Time

	CreatedAt time.Time `gorm:"not null"`
}

func (Entry) TableName() string { return "dlq_entries" }
