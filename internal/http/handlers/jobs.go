package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/inbound"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// JobsHandler exposes intake job status.
type JobsHandler struct {
	jobs   inbound.JobRecorder
	logger *logging.Logger
}

func NewJobsHandler(jobs inbound.JobRecorder, logger *logging.Logger) *JobsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &JobsHandler{jobs: jobs, logger: logger}
}

// GetJob is GET /admin/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}
	if h.jobs == nil {
		http.Error(w, "job tracking disabled", http.StatusNotFound)
		return
	}
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, inbound.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load job", "job_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
