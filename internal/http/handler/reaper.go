package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"clipqc/internal/jobs"
)

// ReaperHandler exposes the stale-job sweep to the platform's cron
// scheduler. Gated by a shared secret header instead of a JWT: the
// caller is infrastructure, not a tenant.
type ReaperHandler struct {
	Reaper *jobs.Reaper
	Secret string
}

func (h *ReaperHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Cron-Secret")
	if h.Secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	n, err := h.Reaper.Sweep(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"message":     "sweep complete",
		"reapedCount": n,
	})
}
