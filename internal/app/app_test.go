package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"askdoc/internal/adapter/memory"
	"askdoc/internal/config"
)

func TestNew(t *testing.T) {
	// 1. Mock DB
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	// 2. In-memory index
	index := memory.NewStore()

	// 3. Config
	appCfg := &config.Config{
		ServerPort:            8081,
		MaxUploadSizeMB:       50,
		EmbeddingDim:          768,
		ChunkMaxChars:         1200,
		ChunkOverlap:          200,
		EmbedBatchSize:        16,
		SearchTopK:            5,
		LLMWeight:             0.5,
		RerankFailureFraction: 0.34,
		RerankConcurrency:     4,
	}

	// 4. Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Execute
	application, err := New(appCfg, db, index, nil, logger, nil)
	assert.NoError(t, err)
	assert.NotNil(t, application)
	assert.NotNil(t, application.Handler)
	assert.NotNil(t, application.DocumentService)
	assert.NotNil(t, application.IngestConsumer)

	// Verify Routes (Integration-ish)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Validation reaches the document handler through the middleware chain
	req = httptest.NewRequest("POST", "/documents", bytes.NewBufferString(`{"text":"no name"}`))
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// CORS preflight short-circuits
	req = httptest.NewRequest("OPTIONS", "/ask", nil)
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
