package delivery

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Ed2902/ColectorAW/internal/config"
	"github.com/Ed2902/ColectorAW/internal/models"
	"github.com/Ed2902/ColectorAW/internal/pending"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testDeliverer wires a deliverer against tmp storage and the given server
func testDeliverer(t *testing.T, serverURL string) (*Deliverer, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Report: config.ReportConfig{
			ServerURL:  serverURL,
			IngestPath: "/reports",
			TimeoutSec: 5,
		},
		Photo: config.PhotoConfig{
			APIURL:        serverURL,
			IngestPath:    "/app/marcacion/auto",
			FileField:     "file",
			AllowedExt:    []string{"jpg", "jpeg", "png", "webp"},
			MaxMB:         8,
			DefaultUmbral: 0.55,
			TimeoutSec:    5,
		},
		Storage: config.StorageConfig{
			DataDir:    t.TempDir(),
			DesktopDir: t.TempDir(),
		},
	}

	reports := pending.NewReportQueue(cfg.Storage.PendingDir(), zap.NewNop())
	photos := pending.NewPhotoQueue(cfg.Storage.PendingPhotosDir(), cfg.Storage.PendingPhotoFilesDir(), zap.NewNop())
	return New(cfg, reports, photos, nil, zap.NewNop()), cfg
}

func testReport(date string) *models.DailyReport {
	return &models.DailyReport{
		Date:     date,
		Hostname: "test-host",
		User:     "tester",
		Totals:   models.Totals{ActiveSec: 3600, AfkSec: 120},
		Apps:     []models.AppUsage{{App: "code.exe", TotalSec: 3600, TopTitles: []string{"a.py"}}},
		Web:      []models.DomainUsage{},
		Meta:     map[string]any{"correlation_id": "cid-1", "version": "v1"},
	}
}

func writeTestPhoto(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake image bytes"), 0o644))
	return path
}

func TestSendReport_Success(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d, cfg := testDeliverer(t, srv.URL)
	result, err := d.SendReport(testReport("2026-08-28"))
	require.NoError(t, err)
	assert.True(t, result.Success)

	var posted models.DailyReport
	require.NoError(t, json.Unmarshal(received, &posted))
	assert.Equal(t, "2026-08-28", posted.Date)

	// Nothing queued on success
	entries, err := pending.NewReportQueue(cfg.Storage.PendingDir(), zap.NewNop()).Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSendReport_ServerErrorQueuesAndSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, cfg := testDeliverer(t, srv.URL)
	result, err := d.SendReport(testReport("2026-08-28"))
	require.NoError(t, err)

	// Failure is reported, never fatal
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "503")

	// The pending entry exists before the call returned
	entries, lerr := pending.NewReportQueue(cfg.Storage.PendingDir(), zap.NewNop()).Entries()
	require.NoError(t, lerr)
	require.Len(t, entries, 1)
	assert.Contains(t, result.Message, entries[0])

	// ...and so does the human-readable desktop copy
	snap := filepath.Join(cfg.Storage.DesktopDir, "reporte-2026-08-28.json")
	data, rerr := os.ReadFile(snap)
	require.NoError(t, rerr)
	var snapshot models.DailyReport
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, "2026-08-28", snapshot.Date)
}

func TestSendReport_TransportErrorQueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	d, cfg := testDeliverer(t, srv.URL)
	result, err := d.SendReport(testReport("2026-08-28"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "network error")

	entries, lerr := pending.NewReportQueue(cfg.Storage.PendingDir(), zap.NewNop()).Entries()
	require.NoError(t, lerr)
	assert.Len(t, entries, 1)
}

func TestSendReport_PersistenceErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, cfg := testDeliverer(t, srv.URL)

	// Make the pending directory impossible to create
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.Storage.DataDir = filepath.Join(blocker, "nested")
	d.reports = pending.NewReportQueue(cfg.Storage.PendingDir(), zap.NewNop())

	result, err := d.SendReport(testReport("2026-08-28"))
	require.Error(t, err)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.False(t, result.Success)
}

func TestSendPhoto_ValidationFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d, cfg := testDeliverer(t, srv.URL)

	tests := []struct {
		name string
		req  PhotoRequest
	}{
		{"missing file", PhotoRequest{Path: filepath.Join(t.TempDir(), "nope.jpg"), Tipo: "entrada"}},
		{"empty path", PhotoRequest{Tipo: "entrada"}},
		{"bad extension", PhotoRequest{Path: func() string {
			p := filepath.Join(t.TempDir(), "notes.txt")
			require.NoError(t, os.WriteFile(p, []byte("text"), 0o644))
			return p
		}(), Tipo: "entrada"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := d.SendPhoto(tt.req)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.False(t, result.Success)
		})
	}

	// Validation failures never reach the network and never queue anything
	assert.Zero(t, hits.Load())
	entries, err := pending.NewPhotoQueue(cfg.Storage.PendingPhotosDir(), cfg.Storage.PendingPhotoFilesDir(), zap.NewNop()).Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSendPhoto_SizeLimit(t *testing.T) {
	d, _ := testDeliverer(t, "http://unused.invalid")
	d.cfg.Photo.MaxMB = 0.00001

	result, _, err := d.SendPhoto(PhotoRequest{Path: writeTestPhoto(t, "big.jpg"), Tipo: "entrada"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "too large")
}

func TestSendPhoto_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(16<<20))
		assert.Equal(t, "salida", r.FormValue("tipo"))
		assert.Equal(t, "0.55", r.FormValue("umbral"))
		assert.Equal(t, "cid-9", r.FormValue("correlation_id"))
		assert.Equal(t, "turno", r.FormValue("sede"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "selfie.jpg", header.Filename)
		content, _ := io.ReadAll(file)
		assert.Equal(t, []byte("fake image bytes"), content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"match": true, "registrado": "ok"}`))
	}))
	defer srv.Close()

	d, _ := testDeliverer(t, srv.URL)
	result, body, err := d.SendPhoto(PhotoRequest{
		Path:          writeTestPhoto(t, "selfie.jpg"),
		Tipo:          "SALIDA",
		CorrelationID: "cid-9",
		Extra:         map[string]string{"sede": "turno", "skipped": ""},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, body)
	assert.Equal(t, true, body["match"])
}

func TestSendPhoto_NonJSONResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain OK"))
	}))
	defer srv.Close()

	d, _ := testDeliverer(t, srv.URL)
	result, body, err := d.SendPhoto(PhotoRequest{Path: writeTestPhoto(t, "p.png"), Tipo: "entrada"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, body)
}

func TestSendPhoto_FailureRetainsCopyAndMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	d, cfg := testDeliverer(t, srv.URL)
	src := writeTestPhoto(t, "selfie.jpg")

	result, _, err := d.SendPhoto(PhotoRequest{Path: src, Tipo: "entrada", CorrelationID: "cid-7"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "502")

	q := pending.NewPhotoQueue(cfg.Storage.PendingPhotosDir(), cfg.Storage.PendingPhotoFilesDir(), zap.NewNop())
	entries, err := q.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	meta, err := q.ReadMeta(entries[0])
	require.NoError(t, err)
	assert.Equal(t, cfg.PhotoEndpoint(), meta.Endpoint)
	assert.Equal(t, "entrada", meta.Fields["tipo"])
	assert.Equal(t, "0.55", meta.Fields["umbral"])
	assert.Equal(t, "cid-7", meta.Fields["correlation_id"])
	assert.Equal(t, src, meta.FilePath)
	assert.Equal(t, http.StatusBadGateway, meta.StatusCode)

	// The retained copy survives deletion of the original
	require.NotEmpty(t, meta.FileCopy)
	require.NoError(t, os.Remove(src))
	copied, err := os.ReadFile(meta.FileCopy)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake image bytes"), copied)
}

func TestPhotoFields_TipoNormalization(t *testing.T) {
	d, _ := testDeliverer(t, "http://unused.invalid")

	assert.Equal(t, "salida", d.photoFields(PhotoRequest{Tipo: " Salida "})["tipo"])
	assert.Equal(t, "entrada", d.photoFields(PhotoRequest{Tipo: "whatever"})["tipo"])

	custom := 0.8
	assert.Equal(t, "0.8", d.photoFields(PhotoRequest{Tipo: "entrada", Umbral: &custom})["umbral"])
}
