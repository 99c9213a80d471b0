package pending

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Ed2902/ColectorAW/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	reportPrefix = "payload-"
	photoPrefix  = "photo-"
)

// entryName builds a pending filename with a sortable timestamp prefix and
// a short unique suffix, so entries appended concurrently never collide and
// a lexical sort preserves retry order.
func entryName(prefix, middle string) string {
	ts := time.Now().Format("20060102-150405")
	uid := strings.Split(uuid.NewString(), "-")[0]
	if middle != "" {
		return fmt.Sprintf("%s%s-%s-%s.json", prefix, middle, ts, uid)
	}
	return fmt.Sprintf("%s%s-%s.json", prefix, ts, uid)
}

// writeDurable writes data to path via a temp file with an fsync before
// rename, so an entry either exists completely or not at all.
func writeDurable(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// listSorted returns the pending entry filenames under dir with the given
// prefix, in ascending (retry) order
func listSorted(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan pending directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReportQueue persists failed report submissions, one JSON file per entry
type ReportQueue struct {
	dir    string
	logger *zap.Logger
}

// NewReportQueue creates a report queue rooted at dir
func NewReportQueue(dir string, logger *zap.Logger) *ReportQueue {
	return &ReportQueue{dir: dir, logger: logger}
}

// Add persists one serialized report payload and returns the entry name
func (q *ReportQueue) Add(date string, payload []byte) (string, error) {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create pending directory: %w", err)
	}
	name := entryName(reportPrefix, date)
	if err := writeDurable(filepath.Join(q.dir, name), payload); err != nil {
		return "", err
	}
	q.logger.Info("Report payload queued for retry", zap.String("entry", name))
	return name, nil
}

// Entries returns all pending report entry names in retry order
func (q *ReportQueue) Entries() ([]string, error) {
	return listSorted(q.dir, reportPrefix)
}

// Read returns the payload of one pending entry
func (q *ReportQueue) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(q.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read pending entry %s: %w", name, err)
	}
	return data, nil
}

// Remove deletes one pending entry without affecting others
func (q *ReportQueue) Remove(name string) error {
	if err := os.Remove(filepath.Join(q.dir, name)); err != nil {
		return fmt.Errorf("failed to remove pending entry %s: %w", name, err)
	}
	q.logger.Debug("Pending report entry removed", zap.String("entry", name))
	return nil
}

// PhotoQueue persists failed photo submissions: one JSON metadata file per
// entry plus a retained copy of the image under a files subdirectory
type PhotoQueue struct {
	dir      string
	filesDir string
	logger   *zap.Logger
}

// NewPhotoQueue creates a photo queue with metadata under dir and retained
// file copies under filesDir
func NewPhotoQueue(dir, filesDir string, logger *zap.Logger) *PhotoQueue {
	return &PhotoQueue{dir: dir, filesDir: filesDir, logger: logger}
}

// RetainFile copies the source image into the retained-files area and
// returns the copy path. The original can then be deleted by the caller
// without losing retry capability.
func (q *PhotoQueue) RetainFile(src string) (string, error) {
	if err := os.MkdirAll(q.filesDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create retained-files directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open photo %s: %w", src, err)
	}
	defer in.Close()

	ts := time.Now().Format("20060102-150405")
	dst := filepath.Join(q.filesDir, fmt.Sprintf("%s_%s", ts, filepath.Base(src)))

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create retained copy %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy photo to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to close retained copy %s: %w", dst, err)
	}

	q.logger.Debug("Photo copy retained", zap.String("copy", dst))
	return dst, nil
}

// Add persists the metadata of one failed photo submission and returns the
// entry name
func (q *PhotoQueue) Add(meta models.PhotoPending) (string, error) {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create pending photos directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal photo metadata: %w", err)
	}

	name := entryName(photoPrefix, "")
	if err := writeDurable(filepath.Join(q.dir, name), data); err != nil {
		return "", err
	}
	q.logger.Info("Photo submission queued for retry", zap.String("entry", name))
	return name, nil
}

// Entries returns all pending photo entry names in retry order
func (q *PhotoQueue) Entries() ([]string, error) {
	return listSorted(q.dir, photoPrefix)
}

// ReadMeta parses the metadata of one pending photo entry
func (q *PhotoQueue) ReadMeta(name string) (models.PhotoPending, error) {
	var meta models.PhotoPending
	data, err := os.ReadFile(filepath.Join(q.dir, name))
	if err != nil {
		return meta, fmt.Errorf("failed to read pending entry %s: %w", name, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse pending entry %s: %w", name, err)
	}
	return meta, nil
}

// Remove deletes one pending photo entry and, when present, its retained
// file copy
func (q *PhotoQueue) Remove(name, fileCopy string) error {
	if fileCopy != "" {
		if err := os.Remove(fileCopy); err != nil && !os.IsNotExist(err) {
			q.logger.Warn("Failed to remove retained photo copy",
				zap.String("copy", fileCopy),
				zap.Error(err),
			)
		}
	}
	if err := os.Remove(filepath.Join(q.dir, name)); err != nil {
		return fmt.Errorf("failed to remove pending entry %s: %w", name, err)
	}
	q.logger.Debug("Pending photo entry removed", zap.String("entry", name))
	return nil
}
