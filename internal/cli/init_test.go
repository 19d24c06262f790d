package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"saldo/internal/backend"
	"saldo/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", config.BackendMemory)
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)

	t.Setenv("PORT", "not-a-port")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "invalid port")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}

func TestOpenBackendAndReportService(t *testing.T) {
	dir := t.TempDir()
	csv := "id,date,category,amount,account,type\n" +
		"t1,2024-01-05,Home,100,Checking,expense\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transactions.csv"), []byte(csv), 0o644))

	cfg := &config.Config{
		DataBackend:       config.BackendMemory,
		DataDir:           dir,
		ReportCacheSize:   8,
		ReportCacheTTL:    time.Minute,
		CategoryThreshold: 2.5,
	}
	logger := SetupLogger(&config.Config{LogLevel: "error"}, &bytes.Buffer{})

	be, err := OpenBackend(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer be.Close()
	assert.Equal(t, backend.MemoryBackend, be.Type)

	reports := NewReportService(be.Source, cfg, logger)
	assert.Equal(t, 2.5, reports.Threshold())

	accounts, err := reports.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Checking"}, accounts)
}

func TestOpenBackendInvalid(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "error"}, &bytes.Buffer{})
	_, err := OpenBackend(context.Background(), &config.Config{DataBackend: "postgres"}, logger)
	assert.Error(t, err)
}
