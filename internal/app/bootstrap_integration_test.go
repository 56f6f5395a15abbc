package app_test

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdoc/internal/app"
	"askdoc/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()
	cfg.BootstrapRetryAttempts = 3
	cfg.BootstrapRetryDelaySeconds = 1
	cfg.EnableIngestWorker = true

	// migrations live two levels up from this file
	_, b, _, _ := runtime.Caller(0)
	basepath := filepath.Dir(b)
	cfg.MigrationPath = fmt.Sprintf("file://%s/../../migrations", basepath)

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, deps)
	assert.NotNil(t, deps.DB)

	// Migrations applied
	var exists bool
	err = deps.DB.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'documents')").Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "documents table should exist")

	// Weaviate schema is up and queryable
	count, err := deps.VectorIndex.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// NSQ producer connected
	err = deps.NSQProducer.Ping()
	assert.NoError(t, err)
}

func TestBootstrap_Integration_MemoryBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()
	cfg.BootstrapRetryAttempts = 3
	cfg.BootstrapRetryDelaySeconds = 1
	cfg.VectorBackend = "memory"
	cfg.WeaviateHost = "localhost:54322" // Unreachable; memory backend must not touch it

	_, b, _, _ := runtime.Caller(0)
	basepath := filepath.Dir(b)
	cfg.MigrationPath = fmt.Sprintf("file://%s/../../migrations", basepath)

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)

	count, err := deps.VectorIndex.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
