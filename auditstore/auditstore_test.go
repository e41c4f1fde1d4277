package auditstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndRecent(t *testing.T) {
	s, err := New(&Args{Path: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.Insert(ctx, Entry{
		PostID:     "abc123",
		Author:     "someuser",
		Decision:   "remind",
		RecordedAt: now,
	}))
	require.NoError(t, s.Insert(ctx, Entry{
		PostID:     "def456",
		Author:     "otheruser",
		Decision:   "remove",
		DryRun:     true,
		Error:      "reddit: permission denied",
		RecordedAt: now.Add(time.Minute),
	}))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "def456", entries[0].PostID)
	assert.Equal(t, "remove", entries[0].Decision)
	assert.True(t, entries[0].DryRun)
	assert.Equal(t, "reddit: permission denied", entries[0].Error)

	assert.Equal(t, "abc123", entries[1].PostID)
	assert.False(t, entries[1].DryRun)
	assert.Empty(t, entries[1].Error)
}

func TestRecentLimit(t *testing.T) {
	s, err := New(&Args{Path: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, Entry{
			PostID:     "abc123",
			Decision:   "wait",
			RecordedAt: time.Now(),
		}))
	}

	entries, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
