package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clipqc/internal/auth"
	"clipqc/internal/dlq"
	"clipqc/internal/jobs"
)

type DLQHandler struct {
	Svc *dlq.Service
}

type dlqEntryDTO struct {
	EntryID         string       `json:"entry_id"`
	SourceJobID     string       `json:"source_job_id"`
	Status          string       `json:"status"`
	FailureReason   jobErrorDTO  `json:"failure_reason"`
	RetryCount      int          `json:"retry_count"`
	NewJobID        *string      `json:"new_job_id,omitempty"`
	ResolvedBy      *string      `json:"resolved_by,omitempty"`
	ResolutionNotes *string      `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

func toDLQEntryDTO(e dlq.Entry) dlqEntryDTO {
	return dlqEntryDTO{
		EntryID:         e.ID,
		SourceJobID:     e.SourceJobID,
		Status:          e.Status,
		FailureReason:   jobErrorDTO{Kind: e.FailureKind, Message: e.FailureMessage},
		RetryCount:      e.RetryCount,
		NewJobID:        e.NewJobID,
		ResolvedBy:      e.ResolvedBy,
		ResolutionNotes: e.ResolutionNotes,
		ResolvedAt:      e.ResolvedAt,
		CreatedAt:       e.CreatedAt,
	}
}

var validDLQStatus = map[string]bool{
	"":                  true,
	dlq.StatusPending:   true,
	dlq.StatusRetrying:  true,
	dlq.StatusResolved:  true,
	dlq.StatusAbandoned: true,
}

// List serves GET /dlq: paginated entries, or counts by status with ?stats=true.
func (h *DLQHandler) List(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	if strings.EqualFold(r.URL.Query().Get("stats"), "true") {
		stats, err := h.Svc.Stats(r.Context(), id.OrgID)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"stats": stats})
		return
	}

	status := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("status")))
	if !validDLQStatus[status] {
		http.Error(w, "invalid status value", http.StatusBadRequest)
		return
	}
	limit, offset := pageParams(r, 50, 200)

	rows, total, err := h.Svc.List(r.Context(), id.OrgID, status, limit, offset)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]dlqEntryDTO, 0, len(rows))
	for _, e := range rows {
		out = append(out, toDLQEntryDTO(e))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"entries": out,
		"total":   total,
	})
}

type dlqActionReq struct {
	Action        string `json:"action"`
	ID            string `json:"id"`
	DryRun        bool   `json:"dryRun"`
	ResolvedBy    string `json:"resolvedBy"`
	Notes         string `json:"notes"`
	OlderThanDays int    `json:"olderThanDays"`
}

// Action serves POST /dlq: dispatches retry/resolve/purge. Purge requires
// the admin tier on top of the operator tier the route already enforces.
func (h *DLQHandler) Action(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var req dlqActionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	switch strings.TrimSpace(strings.ToLower(req.Action)) {
	case "retry":
		out, err := h.Svc.Retry(r.Context(), id.OrgID, req.ID, req.DryRun)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := map[string]any{
			"success": true,
			"message": out.Message,
			"dryRun":  out.DryRun,
		}
		if out.NewJobID != "" {
			resp["newJobId"] = out.NewJobID
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)

	case "resolve":
		resolvedBy := strings.TrimSpace(req.ResolvedBy)
		if resolvedBy == "" {
			resolvedBy = id.Subject
		}
		if err := h.Svc.Resolve(r.Context(), id.OrgID, req.ID, resolvedBy, req.Notes); err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "entry resolved",
		})

	case "purge":
		if !id.AtLeast(auth.RoleAdmin) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		n, err := h.Svc.Purge(r.Context(), id.OrgID, req.OlderThanDays)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"message":      "purged " + strconv.FormatInt(n, 10) + " entries",
			"deletedCount": n,
		})

	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, jobs.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
