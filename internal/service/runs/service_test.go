package runs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convanalyzer/internal/config"
	"convanalyzer/internal/storage"
)

func TestRecordAndListNewestFirst(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, storage.Migrate(db, "sqlite3"))

	svc, err := NewService(db, "sqlite3")
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	older := Run{RunID: uuid.New(), Model: "gpt-5", Selection: "all 2 conversations", Processed: 2, Succeeded: 2,
		StartedAt: base, FinishedAt: base.Add(time.Minute)}
	newer := Run{RunID: uuid.New(), Model: "gemini-2.5-flash", Selection: "conversations 3-4", Processed: 1, Succeeded: 0, Failed: 1,
		Interrupted: true, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Second)}
	require.NoError(t, svc.Record(ctx, older))
	require.NoError(t, svc.Record(ctx, newer))

	got, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.RunID, got[0].RunID)
	assert.True(t, got[0].Interrupted)
	assert.Equal(t, 1, got[0].Failed)
	assert.Equal(t, older.RunID, got[1].RunID)
	assert.True(t, got[1].StartedAt.Equal(base))

	limited, err := svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
