package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5600/api/0", cfg.Tracker.BaseURL)
	assert.Equal(t, 200000, cfg.Tracker.EventLimit)
	assert.Equal(t, 20, cfg.Tracker.TimeoutSec)
	assert.Equal(t, 5, cfg.Report.TopTitlesLimit)
	assert.Equal(t, 5, cfg.Report.TopURLsLimit)
	assert.Equal(t, "file", cfg.Photo.FileField)
	assert.Equal(t, []string{"jpg", "jpeg", "png", "webp"}, cfg.Photo.AllowedExt)
	assert.Equal(t, 8.0, cfg.Photo.MaxMB)
	assert.Equal(t, 0.55, cfg.Photo.DefaultUmbral)
	assert.NotEmpty(t, cfg.Storage.DataDir)
	assert.NotEmpty(t, cfg.Storage.DesktopDir)
}

func TestLoadConfig_NormalizesURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
report:
  server_url: "https://example.com///"
  ingest_path: "reports"
photo:
  api_url: "https://photos.example.com/"
  ingest_path: "marcacion"
tracker:
  base_url: "http://localhost:5600/api/0/"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/reports", cfg.ReportEndpoint())
	assert.Equal(t, "https://photos.example.com/marcacion", cfg.PhotoEndpoint())
	assert.Equal(t, "http://localhost:5600/api/0", cfg.Tracker.BaseURL)
}

func TestStorageConfig_DerivedDirs(t *testing.T) {
	s := StorageConfig{DataDir: "/data/colector"}

	assert.Equal(t, filepath.Join("/data/colector", "pending"), s.PendingDir())
	assert.Equal(t, filepath.Join("/data/colector", "pending", "photos"), s.PendingPhotosDir())
	assert.Equal(t, filepath.Join("/data/colector", "pending", "photos", "files"), s.PendingPhotoFilesDir())
	assert.Equal(t, filepath.Join("/data/colector", "history.db"), s.HistoryPath())
}

func TestStorageConfig_EnsureDirs(t *testing.T) {
	s := StorageConfig{DataDir: filepath.Join(t.TempDir(), "colector")}
	require.NoError(t, s.EnsureDirs())

	for _, dir := range []string{s.PendingDir(), s.PendingPhotosDir(), s.PendingPhotoFilesDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
