package delivery

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Ed2902/ColectorAW/internal/models"

	"go.uber.org/zap"
)

// ResendAll sweeps both pending queues in retry order and attempts exactly
// one redelivery per entry. Entries that succeed are deleted (photos also
// lose their retained copy); entries that fail stay untouched for a future
// pass. A malformed entry is reported as a failure without aborting the
// sweep. A failed resend never re-queues: the entry is already on disk.
func (d *Deliverer) ResendAll() ([]models.ResendResult, error) {
	results := []models.ResendResult{}

	reportEntries, err := d.reports.Entries()
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending reports: %w", err)
	}
	for _, name := range reportEntries {
		results = append(results, d.resendReport(name))
	}

	photoEntries, err := d.photos.Entries()
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending photos: %w", err)
	}
	for _, name := range photoEntries {
		results = append(results, d.resendPhoto(name))
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	d.logger.Info("Pending queue sweep finished",
		zap.Int("total", len(results)),
		zap.Int("succeeded", succeeded),
	)

	return results, nil
}

// resendReport retries one pending report entry, posting the persisted
// payload byte-for-byte
func (d *Deliverer) resendReport(name string) models.ResendResult {
	payload, err := d.reports.Read(name)
	if err != nil {
		return models.ResendResult{Entry: name, Success: false, Message: err.Error()}
	}

	var probe struct {
		Meta map[string]any `json:"meta"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return models.ResendResult{
			Entry:   name,
			Success: false,
			Message: fmt.Sprintf("malformed pending entry: %v", err),
		}
	}

	status, cause := d.postReport(payload)
	ok := status >= 200 && status < 300
	d.record("report", true, d.cfg.ReportEndpoint(), metaString(probe.Meta, "correlation_id"), ok, status, cause)

	if !ok {
		return models.ResendResult{
			Entry:   name,
			Success: false,
			Message: fmt.Sprintf("resend failed: %s", cause),
		}
	}

	if err := d.reports.Remove(name); err != nil {
		// Delivered but not cleaned up; the next sweep may duplicate it,
		// which at-least-once delivery accepts.
		d.logger.Warn("Failed to remove delivered entry", zap.String("entry", name), zap.Error(err))
		return models.ResendResult{
			Entry:   name,
			Success: true,
			Message: fmt.Sprintf("delivered (status %d) but entry removal failed: %v", status, err),
		}
	}

	return models.ResendResult{
		Entry:   name,
		Success: true,
		Message: fmt.Sprintf("delivered (status %d)", status),
	}
}

// resendPhoto retries one pending photo entry, preferring the retained
// copy over the original path
func (d *Deliverer) resendPhoto(name string) models.ResendResult {
	meta, err := d.photos.ReadMeta(name)
	if err != nil {
		return models.ResendResult{
			Entry:   name,
			Success: false,
			Message: fmt.Sprintf("malformed pending entry: %v", err),
		}
	}

	endpoint := meta.Endpoint
	if endpoint == "" {
		endpoint = d.cfg.PhotoEndpoint()
	}

	filePath := meta.FileCopy
	if filePath == "" {
		filePath = meta.FilePath
	}
	if filePath == "" {
		return models.ResendResult{Entry: name, Success: false, Message: "photo file not found for retry"}
	}
	if _, err := os.Stat(filePath); err != nil {
		return models.ResendResult{Entry: name, Success: false, Message: "photo file not found for retry"}
	}

	status, _, cause := d.postPhoto(endpoint, meta.Headers, meta.Fields, filePath)
	ok := status >= 200 && status < 300
	d.record("photo", true, endpoint, meta.Fields["correlation_id"], ok, status, cause)

	if !ok {
		return models.ResendResult{
			Entry:   name,
			Success: false,
			Message: fmt.Sprintf("resend failed: %s", cause),
		}
	}

	if err := d.photos.Remove(name, meta.FileCopy); err != nil {
		d.logger.Warn("Failed to remove delivered entry", zap.String("entry", name), zap.Error(err))
		return models.ResendResult{
			Entry:   name,
			Success: true,
			Message: fmt.Sprintf("delivered (status %d) but entry removal failed: %v", status, err),
		}
	}

	return models.ResendResult{
		Entry:   name,
		Success: true,
		Message: fmt.Sprintf("delivered (status %d)", status),
	}
}
