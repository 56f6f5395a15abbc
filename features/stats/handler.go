package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"askdoc/internal/jobs"
	"askdoc/internal/middleware"
)

type DocumentRepo interface {
	Count(ctx context.Context) (int, error)
}

type VectorIndex interface {
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

type Handler struct {
	docRepo  DocumentRepo
	index    VectorIndex
	registry *jobs.Registry
}

func NewHandler(d DocumentRepo, v VectorIndex, registry *jobs.Registry) *Handler {
	return &Handler{docRepo: d, index: v, registry: registry}
}

type StatsResponse struct {
	Documents   int       `json:"documents"`
	RecordCount int       `json:"record_count"`
	LatestJob   *jobs.Job `json:"latest_job,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dCount, err := h.docRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	rCount, err := h.index.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count index records", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count index records", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Documents:   dCount,
		RecordCount: rCount,
	}
	if job, ok := h.registry.Latest(); ok {
		resp.LatestJob = &job
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Clear empties the knowledge base: every indexed chunk is dropped.
// Document rows stay; their chunks are gone, so re-ingest is required
// before they answer questions again.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.index.Clear(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to clear index", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to clear knowledge base", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "knowledge base cleared")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"status": "cleared"}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
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
