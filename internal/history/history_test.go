package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Record(Entry{
		Kind:          "report",
		Endpoint:      "https://example.com/reports",
		CorrelationID: "cid-1",
		Success:       false,
		StatusCode:    503,
		Message:       "server returned status 503",
	}))
	require.NoError(t, s.Record(Entry{
		Kind:          "report",
		Resend:        true,
		Endpoint:      "https://example.com/reports",
		CorrelationID: "cid-1",
		Success:       true,
		StatusCode:    200,
	}))

	entries, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first
	assert.True(t, entries[0].Success)
	assert.True(t, entries[0].Resend)
	assert.Equal(t, 200, entries[0].StatusCode)
	assert.False(t, entries[1].Success)
	assert.Equal(t, "cid-1", entries[1].CorrelationID)
	assert.WithinDuration(t, time.Now(), entries[0].CreatedAt, time.Minute)
}

func TestRecentLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(Entry{Kind: "photo", Endpoint: "e", Success: true, StatusCode: 200}))
	}

	entries, err := s.Recent(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(Entry{Kind: "report", Endpoint: "e", Success: true, StatusCode: 200}))

	// A generous cutoff keeps everything
	require.NoError(t, s.Cleanup(24*time.Hour))
	entries, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// A negative duration moves the cutoff into the future and clears it
	require.NoError(t, s.Cleanup(-time.Hour))
	entries, err = s.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
