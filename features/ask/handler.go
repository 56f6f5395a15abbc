package ask

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"askdoc/internal/agent"
	"askdoc/internal/middleware"
	"askdoc/internal/retrieval"
	"askdoc/internal/synthesize"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type askRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode"`
}

func (r askRequest) mode() agent.Mode {
	if r.Mode == string(agent.ModeFull) {
		return agent.ModeFull
	}
	return agent.ModeFast
}

// Ask answers a question in one shot.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := h.service.Answer(r.Context(), req.Question, req.mode())
	if err != nil {
		h.writeAskError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": answer}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// AskStream answers a question as a server-sent event stream. Each
// fragment goes out as one `data:` line of JSON; the stream ends with
// a [DONE] sentinel, or [ERROR] if generation broke mid-answer.
func (h *Handler) AskStream(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	stream, err := h.service.AnswerStream(r.Context(), req.Question, req.mode())
	if err != nil {
		h.writeAskError(r.Context(), w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for frag := range stream.Fragments() {
		if frag.Err != nil {
			writeEvent(w, "[ERROR] "+frag.Err.Error())
			flusher.Flush()
			return
		}
		if frag.Final {
			break
		}
		body, err := json.Marshal(frag)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to encode fragment", "error", err)
			continue
		}
		writeEvent(w, string(body))
		flusher.Flush()
	}

	writeEvent(w, "[DONE]")
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, data string) {
	if _, err := w.Write([]byte("data: " + data + "\n\n")); err != nil {
		slog.Error("failed to write event", "error", err)
	}
}

func (h *Handler) writeAskError(ctx context.Context, w http.ResponseWriter, err error) {
	var stageErr *agent.StageError
	switch {
	case errors.Is(err, retrieval.ErrInvalidInput):
		h.writeError(ctx, w, "VALIDATION_ERROR", "Question must not be empty", http.StatusBadRequest)
	case errors.Is(err, retrieval.ErrUnavailable),
		errors.Is(err, synthesize.ErrLLMUnavailable):
		slog.ErrorContext(ctx, "upstream unavailable", "error", err)
		h.writeError(ctx, w, "UPSTREAM_UNAVAILABLE", "A backing service is unavailable", http.StatusServiceUnavailable)
	case errors.As(err, &stageErr):
		slog.ErrorContext(ctx, "pipeline failed", "error", err, "stage", string(stageErr.Stage))
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to answer question", http.StatusInternalServerError)
	default:
		slog.ErrorContext(ctx, "ask failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
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
