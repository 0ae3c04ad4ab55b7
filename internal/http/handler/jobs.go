package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clipqc/internal/auth"
	"clipqc/internal/jobs"

	"github.com/go-chi/chi/v5"
)

type JobHandler struct {
	Intake *jobs.Intake
	Repo   *jobs.Repo
}

type jobErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type jobDTO struct {
	JobID       string          `json:"job_id"`
	Status      string          `json:"status"`
	PayloadRef  string          `json:"payload_ref"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *jobErrorDTO    `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at"`
}

func toJobDTO(j jobs.Job) jobDTO {
	dto := jobDTO{
		JobID:       j.ID,
		Status:      j.Status,
		PayloadRef:  j.PayloadRef,
		Result:      json.RawMessage(j.Result),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.ErrorKind != nil {
		e := jobErrorDTO{Kind: *j.ErrorKind}
		if j.ErrorMessage != nil {
			e.Message = *j.ErrorMessage
		}
		dto.Error = &e
	}
	return dto
}

type submitReq struct {
	PayloadRef string `json:"payloadRef"`
}

func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	jobID, err := h.Intake.Submit(r.Context(), id.OrgID, req.PayloadRef)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidRequest) {
			http.Error(w, "payloadRef required", http.StatusBadRequest)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "job queued",
		"jobId":   jobID,
	})
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	j, err := h.Repo.Get(r.Context(), id.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toJobDTO(*j))
}

var validJobStatus = map[string]bool{
	"":                   true,
	jobs.StatusQueued:    true,
	jobs.StatusPending:   true,
	jobs.StatusRunning:   true,
	jobs.StatusCompleted: true,
	jobs.StatusFailed:    true,
	jobs.StatusCancelled: true,
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	status := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("status")))
	if !validJobStatus[status] {
		http.Error(w, "invalid status value", http.StatusBadRequest)
		return
	}
	limit, offset := pageParams(r, 50, 200)

	rows, total, err := h.Repo.List(r.Context(), id.OrgID, status, limit, offset)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]jobDTO, 0, len(rows))
	for _, j := range rows {
		out = append(out, toJobDTO(j))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jobs":  out,
		"total": total,
	})
}

type cancelReq struct {
	JobIDs []string `json:"jobIds"`
	All    bool     `json:"all"`
}

func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if !req.All && len(req.JobIDs) == 0 {
		http.Error(w, "jobIds or all required", http.StatusBadRequest)
		return
	}

	cancelled, err := h.Repo.Cancel(r.Context(), id.OrgID, req.JobIDs, req.All)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// An empty result is still success: there was simply nothing to cancel.
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":         true,
		"message":         "cancelled " + strconv.Itoa(len(cancelled)) + " job(s)",
		"cancelledCount":  len(cancelled),
		"cancelledJobIds": cancelled,
	})
}

func (h *JobHandler) ListCancellable(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	rows, err := h.Repo.ListCancellable(r.Context(), id.OrgID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]jobDTO, 0, len(rows))
	for _, j := range rows {
		out = append(out, toJobDTO(j))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jobs": out})
}

func pageParams(r *http.Request, defLimit, maxLimit int) (limit, offset int) {
	limit = defLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
