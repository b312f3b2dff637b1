// Package httpx provides the HTTP surface of the automation job API.
package httpx

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docuflow/automation-api/internal/domain/model"
	"github.com/docuflow/automation-api/internal/service"
)

// defaultListLimit caps GET /api/jobs responses unless overridden.
const defaultListLimit = 50

// JobHandlers provides HTTP handlers for automation job operations.
type JobHandlers struct {
	Svc *service.JobService
}

// StartJob handles HTTP requests to start a new automation job.
func (h *JobHandlers) StartJob(w http.ResponseWriter, r *http.Request) {
	var req model.StartJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.StartJob(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobs handles HTTP requests for the recent-jobs listing.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	WriteJSON(w, http.StatusOK, h.Svc.ListRecent(r.Context(), limit))
}

// GetJob handles HTTP requests for a single job status snapshot.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	job, err := h.Svc.GetJobStatus(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// CancelJob handles HTTP requests to stop a running job.
func (h *JobHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	if err := h.Svc.CancelJob(r.Context(), id); err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// GetStats handles HTTP requests for job counts per status.
func (h *JobHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Svc.Stats(r.Context()))
}

// DownloadResult handles HTTP requests to download a result artifact.
func (h *JobHandlers) DownloadResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name := r.PathValue("name")
	if id == "" || name == "" {
		WriteError(
			w,
			ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_path",
				Err:     errors.New("job id and file name are required"),
			},
		)
		return
	}

	content, err := h.Svc.FetchResultFile(r.Context(), id, name)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".log":
		return "text/plain; charset=utf-8"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
