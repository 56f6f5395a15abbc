package ask_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdoc/features/ask"
	"askdoc/internal/agent"
	"askdoc/internal/rerank"
	"askdoc/internal/retrieval"
	"askdoc/internal/synthesize"
)

func newTestHandler(orch *fakeOrchestrator) *ask.Handler {
	return ask.NewHandler(ask.NewService(factoryFor(orch)))
}

func TestHandler_Ask(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		orch := &fakeOrchestrator{result: &agent.Result{
			Stream: makeStream(t, "<answer>", "Revenue rose 12%.", "</answer>"),
			Candidates: []rerank.Candidate{
				{Candidate: retrieval.Candidate{Text: "a", Source: "q3.md", Score: 0.9}},
			},
		}}
		handler := newTestHandler(orch)

		req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{"question": "How did revenue do?"}`))
		rec := httptest.NewRecorder()

		handler.Ask(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data ask.Answer `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Revenue rose 12%.", resp.Data.Answer)
		assert.Equal(t, []string{"q3.md"}, resp.Data.Sources)
		assert.Equal(t, agent.ModeFast, orch.gotMode)
	})

	t.Run("Full Mode Requested", func(t *testing.T) {
		orch := &fakeOrchestrator{result: &agent.Result{
			Stream: makeStream(t, "<answer>", "ok", "</answer>"),
		}}
		handler := newTestHandler(orch)

		req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{"question": "q", "mode": "full"}`))
		rec := httptest.NewRecorder()

		handler.Ask(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, agent.ModeFull, orch.gotMode)
	})

	t.Run("Bad JSON", func(t *testing.T) {
		handler := newTestHandler(&fakeOrchestrator{})

		req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{broken`))
		rec := httptest.NewRecorder()

		handler.Ask(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Empty Question", func(t *testing.T) {
		cause := &agent.StageError{Stage: agent.StageRetrieval, Err: retrieval.ErrInvalidInput}
		handler := newTestHandler(&fakeOrchestrator{err: cause})

		req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{"question": ""}`))
		rec := httptest.NewRecorder()

		handler.Ask(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Upstream Unavailable", func(t *testing.T) {
		cause := &agent.StageError{Stage: agent.StageAnswer, Err: synthesize.ErrLLMUnavailable}
		handler := newTestHandler(&fakeOrchestrator{err: cause})

		req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{"question": "q"}`))
		rec := httptest.NewRecorder()

		handler.Ask(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "UPSTREAM_UNAVAILABLE")
	})

	t.Run("Other Errors Are Internal", func(t *testing.T) {
		handler := newTestHandler(&fakeOrchestrator{err: errors.New("boom")})

		req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{"question": "q"}`))
		rec := httptest.NewRecorder()

		handler.Ask(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandler_AskStream(t *testing.T) {
	t.Run("Streams Fragments Then Done", func(t *testing.T) {
		orch := &fakeOrchestrator{result: &agent.Result{
			Stream: makeStream(t, "<think>", "reason", "</think>", "<answer>", "Revenue ", "rose.", "</answer>"),
		}}
		handler := newTestHandler(orch)

		req := httptest.NewRequest("POST", "/ask/stream", strings.NewReader(`{"question": "q"}`))
		rec := httptest.NewRecorder()

		handler.AskStream(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		lines := strings.Split(strings.TrimSpace(body), "\n\n")
		require.NotEmpty(t, lines)
		assert.Equal(t, "data: [DONE]", lines[len(lines)-1])

		var sawThink, sawAnswer bool
		for _, line := range lines[:len(lines)-1] {
			payload := strings.TrimPrefix(line, "data: ")
			var frag synthesize.Fragment
			require.NoError(t, json.Unmarshal([]byte(payload), &frag))
			switch frag.Channel {
			case synthesize.ChannelThink:
				sawThink = true
			case synthesize.ChannelAnswer:
				sawAnswer = true
			}
		}
		assert.True(t, sawThink)
		assert.True(t, sawAnswer)
	})

	t.Run("Mid Stream Failure Emits Error Sentinel", func(t *testing.T) {
		orch := &fakeOrchestrator{result: &agent.Result{
			Stream: makeStreamWithError(t, errors.New("model crashed"), "<answer>", "partial"),
		}}
		handler := newTestHandler(orch)

		req := httptest.NewRequest("POST", "/ask/stream", strings.NewReader(`{"question": "q"}`))
		rec := httptest.NewRecorder()

		handler.AskStream(rec, req)

		body := rec.Body.String()
		assert.Contains(t, body, "data: [ERROR]")
		assert.NotContains(t, body, "data: [DONE]")
	})

	t.Run("Open Failure Is JSON Error", func(t *testing.T) {
		cause := &agent.StageError{Stage: agent.StageAnswer, Err: synthesize.ErrLLMUnavailable}
		handler := newTestHandler(&fakeOrchestrator{err: cause})

		req := httptest.NewRequest("POST", "/ask/stream", strings.NewReader(`{"question": "q"}`))
		rec := httptest.NewRecorder()

		handler.AskStream(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
