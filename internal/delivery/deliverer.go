package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Ed2902/ColectorAW/internal/config"
	"github.com/Ed2902/ColectorAW/internal/history"
	"github.com/Ed2902/ColectorAW/internal/models"
	"github.com/Ed2902/ColectorAW/internal/pending"

	"go.uber.org/zap"
)

// Deliverer performs submissions to the remote ingestion APIs. Each call
// makes exactly one HTTP attempt; on any non-success outcome the payload is
// persisted to the pending queue before the call returns. Retries happen
// only through an explicit resend sweep, never in the background.
type Deliverer struct {
	cfg          *config.Config
	reports      *pending.ReportQueue
	photos       *pending.PhotoQueue
	history      *history.Store // optional
	reportClient *http.Client
	photoClient  *http.Client
	logger       *zap.Logger
}

// New creates a new deliverer. hist may be nil, in which case no attempt
// history is recorded.
func New(
	cfg *config.Config,
	reports *pending.ReportQueue,
	photos *pending.PhotoQueue,
	hist *history.Store,
	logger *zap.Logger,
) *Deliverer {
	return &Deliverer{
		cfg:     cfg,
		reports: reports,
		photos:  photos,
		history: hist,
		reportClient: &http.Client{
			Timeout: time.Duration(cfg.Report.TimeoutSec) * time.Second,
		},
		photoClient: &http.Client{
			Timeout: time.Duration(cfg.Photo.TimeoutSec) * time.Second,
		},
		logger: logger,
	}
}

// PhotoRequest describes one attendance photo submission
type PhotoRequest struct {
	Path          string
	Tipo          string // "entrada" or "salida"
	CorrelationID string
	Umbral        *float64 // nil uses the configured default
	Extra         map[string]string
}

// SendReport submits a daily report as a JSON body. On failure the payload
// is queued for retry and a human-readable copy is written to the desktop
// as a last-resort audit trail. The returned error is non-nil only when
// serialization or queue persistence itself fails.
func (d *Deliverer) SendReport(report *models.DailyReport) (models.DeliveryResult, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return models.DeliveryResult{}, fmt.Errorf("failed to marshal report: %w", err)
	}

	status, cause := d.postReport(payload)
	ok := status >= 200 && status < 300
	d.record("report", false, d.cfg.ReportEndpoint(), metaString(report.Meta, "correlation_id"), ok, status, cause)

	if ok {
		msg := fmt.Sprintf("Report for %s delivered (status %d)", report.Date, status)
		d.logger.Info("Report delivered",
			zap.String("date", report.Date),
			zap.Int("status_code", status),
		)
		return models.DeliveryResult{Success: true, Message: msg}, nil
	}

	entry, qerr := d.reports.Add(report.Date, payload)
	if qerr != nil {
		d.logger.Error("Failed to queue report payload", zap.Error(qerr))
		return models.DeliveryResult{
			Success: false,
			Message: fmt.Sprintf("report delivery failed (%s) and could not be queued", cause),
		}, &PersistenceError{Op: "report payload", Err: qerr}
	}

	msg := fmt.Sprintf("report delivery failed: %s; queued as %s", cause, entry)
	if snap, serr := d.writeDesktopSnapshot(report.Date, payload); serr != nil {
		d.logger.Warn("Failed to write desktop snapshot", zap.Error(serr))
	} else {
		msg += "; desktop copy at " + snap
	}

	d.logger.Warn("Report delivery failed",
		zap.String("date", report.Date),
		zap.String("cause", cause),
		zap.String("entry", entry),
	)

	return models.DeliveryResult{Success: false, Message: msg}, nil
}

// postReport performs the single HTTP attempt for a serialized report and
// returns the status code (0 on transport failure) and a failure cause
func (d *Deliverer) postReport(payload []byte) (int, string) {
	req, err := http.NewRequest(http.MethodPost, d.cfg.ReportEndpoint(), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Sprintf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.reportClient.Do(req)
	if err != nil {
		return 0, fmt.Sprintf("network error: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, ""
	}
	return resp.StatusCode, fmt.Sprintf("server returned status %d", resp.StatusCode)
}

// writeDesktopSnapshot writes an indented copy of the payload to the
// user-facing desktop location
func (d *Deliverer) writeDesktopSnapshot(date string, payload []byte) (string, error) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		return "", fmt.Errorf("failed to indent payload: %w", err)
	}

	dir := d.cfg.Storage.DesktopDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create desktop directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("reporte-%s.json", date))
	if err := os.WriteFile(path, pretty.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write desktop snapshot: %w", err)
	}
	return path, nil
}

// SendPhoto submits an attendance photo as multipart form data. Validation
// failures return a *ValidationError with nothing queued; delivery failures
// queue the request metadata and retain a copy of the image. On success the
// parsed response body is returned when present and well-formed.
func (d *Deliverer) SendPhoto(req PhotoRequest) (models.DeliveryResult, map[string]any, error) {
	if err := d.validatePhoto(req.Path); err != nil {
		return models.DeliveryResult{Success: false, Message: err.Error()}, nil, err
	}

	endpoint := d.cfg.PhotoEndpoint()
	fields := d.photoFields(req)
	headers := map[string]string{}
	if token := strings.TrimSpace(d.cfg.Photo.AuthToken); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	status, body, cause := d.postPhoto(endpoint, headers, fields, req.Path)
	ok := status >= 200 && status < 300
	d.record("photo", false, endpoint, fields["correlation_id"], ok, status, cause)

	if ok {
		var parsed map[string]any
		if json.Unmarshal(body, &parsed) != nil {
			parsed = nil
		}
		d.logger.Info("Photo delivered",
			zap.String("tipo", fields["tipo"]),
			zap.Int("status_code", status),
		)
		return models.DeliveryResult{
			Success: true,
			Message: fmt.Sprintf("Photo delivered (status %d)", status),
		}, parsed, nil
	}

	copyPath, cerr := d.photos.RetainFile(req.Path)
	if cerr != nil {
		d.logger.Warn("Failed to retain photo copy", zap.Error(cerr))
		copyPath = ""
	}

	meta := models.PhotoPending{
		Endpoint:     endpoint,
		Headers:      headers,
		Fields:       fields,
		FilePath:     req.Path,
		FileCopy:     copyPath,
		StatusCode:   status,
		ResponseText: truncate(string(body), 1000),
		SavedAt:      time.Now().Format("20060102-150405"),
	}
	if status == 0 {
		meta.Error = cause
	}

	entry, qerr := d.photos.Add(meta)
	if qerr != nil {
		d.logger.Error("Failed to queue photo submission", zap.Error(qerr))
		return models.DeliveryResult{
			Success: false,
			Message: fmt.Sprintf("photo delivery failed (%s) and could not be queued", cause),
		}, nil, &PersistenceError{Op: "photo submission", Err: qerr}
	}

	msg := fmt.Sprintf("photo delivery failed: %s; queued as %s", cause, entry)
	if copyPath != "" {
		msg += "; copy retained at " + copyPath
	}

	d.logger.Warn("Photo delivery failed",
		zap.String("cause", cause),
		zap.String("entry", entry),
	)

	return models.DeliveryResult{Success: false, Message: msg}, nil, nil
}

// validatePhoto runs the pre-flight checks: the file must exist, carry an
// allowed extension, and stay under the configured size limit
func (d *Deliverer) validatePhoto(path string) error {
	if path == "" {
		return &ValidationError{Message: "no photo file specified"}
	}

	info, err := os.Stat(path)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("photo file does not exist: %s", path)}
	}

	if allowed := d.cfg.Photo.AllowedExt; len(allowed) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		found := false
		for _, a := range allowed {
			if strings.ToLower(a) == ext {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{Message: fmt.Sprintf(
				"extension .%s not allowed (allowed: %s)", ext, strings.Join(allowed, ", "))}
		}
	}

	sizeMB := float64(info.Size()) / (1024 * 1024)
	if sizeMB > d.cfg.Photo.MaxMB {
		return &ValidationError{Message: fmt.Sprintf(
			"photo too large: %.1f MB (maximum %.1f MB)", sizeMB, d.cfg.Photo.MaxMB)}
	}

	return nil
}

// photoFields builds the multipart string fields for one photo submission
func (d *Deliverer) photoFields(req PhotoRequest) map[string]string {
	tipo := strings.ToLower(strings.TrimSpace(req.Tipo))
	if tipo != "entrada" && tipo != "salida" {
		tipo = "entrada"
	}

	umbral := d.cfg.Photo.DefaultUmbral
	if req.Umbral != nil {
		umbral = *req.Umbral
	}

	fields := map[string]string{
		"tipo":   tipo,
		"umbral": strconv.FormatFloat(umbral, 'g', -1, 64),
	}
	if req.CorrelationID != "" {
		fields["correlation_id"] = req.CorrelationID
	}
	for k, v := range req.Extra {
		if v == "" {
			continue
		}
		fields[k] = v
	}
	return fields
}

// postPhoto performs the single multipart HTTP attempt and returns the
// status code (0 on transport failure), response body and failure cause
func (d *Deliverer) postPhoto(endpoint string, headers, fields map[string]string, filePath string) (int, []byte, string) {
	body, contentType, err := buildMultipart(d.cfg.Photo.FileField, filePath, fields)
	if err != nil {
		return 0, nil, fmt.Sprintf("failed to build request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Sprintf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.photoClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Sprintf("network error: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, respBody, ""
	}
	return resp.StatusCode, respBody, fmt.Sprintf("server returned status %d", resp.StatusCode)
}

// buildMultipart assembles a multipart body with one file part followed by
// the string fields in deterministic order
func buildMultipart(fileField, filePath string, fields map[string]string) (*bytes.Buffer, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open photo %s: %w", filePath, err)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, filepath.Base(filePath)))
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read photo %s: %w", filePath, err)
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// record stores one attempt in the submission history, when available
func (d *Deliverer) record(kind string, resend bool, endpoint, correlationID string, success bool, status int, message string) {
	if d.history == nil {
		return
	}
	err := d.history.Record(history.Entry{
		Kind:          kind,
		Resend:        resend,
		Endpoint:      endpoint,
		CorrelationID: correlationID,
		Success:       success,
		StatusCode:    status,
		Message:       message,
	})
	if err != nil {
		d.logger.Warn("Failed to record submission history", zap.Error(err))
	}
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
