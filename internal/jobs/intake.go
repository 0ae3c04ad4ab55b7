package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intake accepts QC analysis requests and persists them as queued jobs.
// It returns as soon as the row is written; execution is the worker
// pool's business. Duplicate submissions produce duplicate jobs.
type Intake struct {
	Repo        *Repo
	MaxAttempts int
}

func (i *Intake) Submit(ctx context.Context, orgID, payloadRef string) (string, error) {
	orgID = strings.TrimSpace(orgID)
	payloadRef = strings.TrimSpace(payloadRef)
	if orgID == "" || payloadRef == "" {
		return "", ErrInvalidRequest
	}

	maxAttempts := i.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	now := time.Now().UTC()
	j := &Job{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Status:         StatusQueued,
		PayloadRef:     payloadRef,
		MaxAttempts:    maxAttempts,
		RunAt:          now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := i.Repo.Create(ctx, j); err != nil {
		return "", err
	}
	return j.ID, nil
}
