package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"askdoc/internal/extract"
	"askdoc/internal/jobs"
	"askdoc/internal/middleware"
)

type Handler struct {
	service   *Service
	jobs      *jobs.Registry
	maxUpload int64
}

func NewHandler(service *Service, registry *jobs.Registry, maxUploadMB int) *Handler {
	if maxUploadMB < 1 {
		maxUploadMB = 50
	}
	return &Handler{
		service:   service,
		jobs:      registry,
		maxUpload: int64(maxUploadMB) << 20,
	}
}

// Create ingests a plain-text document sent as JSON.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Name is required", http.StatusBadRequest)
		return
	}

	doc, jobID, err := h.service.IngestText(r.Context(), req.Name, req.Text)
	if err != nil {
		h.writeServiceError(r.Context(), w, err, req.Name)
		return
	}

	h.writeAccepted(w, doc, jobID)
}

// Upload ingests a multipart file upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = filepath.Base(header.Filename)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to read file", http.StatusInternalServerError)
		return
	}

	format := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	doc, jobID, err := h.service.Upload(r.Context(), name, format, data)
	if err != nil {
		h.writeServiceError(r.Context(), w, err, name)
		return
	}

	h.writeAccepted(w, doc, jobID)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetJob reports ingestion progress for one job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := h.jobs.Get(id)
	if !ok {
		h.writeError(r.Context(), w, "NOT_FOUND", "Job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": job}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// LatestJob reports the most recently started job, for clients that
// poll a single status endpoint.
func (h *Handler) LatestJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs.Latest()
	if !ok {
		h.writeError(r.Context(), w, "NOT_FOUND", "No jobs recorded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": job}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, name string) {
	switch {
	case errors.Is(err, ErrDuplicate):
		h.writeError(ctx, w, "CONFLICT", "Duplicate document", http.StatusConflict)
	case errors.Is(err, ErrEmptyDocument):
		h.writeError(ctx, w, "VALIDATION_ERROR", "Document contains no text", http.StatusBadRequest)
	case errors.Is(err, extract.ErrUnsupportedFormat):
		h.writeError(ctx, w, "VALIDATION_ERROR", "Unsupported file type", http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, "operation failed", "error", err, "name", name)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeAccepted(w http.ResponseWriter, doc *Document, jobID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"document": doc,
			"job_id":   jobID,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
