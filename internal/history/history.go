package history

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store keeps an audit log of every submission attempt in a local sqlite
// database. Writes are best-effort from the caller's point of view; losing
// a history row never loses a submission.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Entry is one recorded submission attempt
type Entry struct {
	ID            int64
	Kind          string // "report" or "photo"
	Resend        bool
	Endpoint      string
	CorrelationID string
	Success       bool
	StatusCode    int
	Message       string
	CreatedAt     time.Time
}

// New opens (creating if necessary) the history database at the given path
func New(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("History database opened", zap.String("path", path))
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS submission_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			resend INTEGER NOT NULL DEFAULT 0,
			endpoint TEXT NOT NULL,
			correlation_id TEXT,
			success INTEGER NOT NULL,
			status_code INTEGER,
			message TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submission_history_created ON submission_history(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Record stores one submission attempt
func (s *Store) Record(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO submission_history (kind, resend, endpoint, correlation_id, success, status_code, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Kind, e.Resend, e.Endpoint, e.CorrelationID, e.Success, e.StatusCode, e.Message, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// Recent returns the latest attempts, newest first
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, resend, endpoint, correlation_id, success, status_code, message, created_at
		FROM submission_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Resend, &e.Endpoint, &e.CorrelationID,
			&e.Success, &e.StatusCode, &e.Message, &e.CreatedAt); err != nil {
			s.logger.Error("Failed to scan history row", zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Cleanup removes attempts older than the given duration
func (s *Store) Cleanup(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.Exec(`DELETE FROM submission_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup history: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Info("Cleaned up old history entries", zap.Int64("count", rowsAffected))
	}

	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	s.logger.Info("History database closed")
	return nil
}
