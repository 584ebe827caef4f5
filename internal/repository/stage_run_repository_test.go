package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"job-pipeline/internal/database"
	"job-pipeline/internal/domain/job"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []any
}

type recordingDB struct {
	database.DB
	calls []execCall
}

func (db *recordingDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	db.calls = append(db.calls, execCall{query: normalizeSQL(query), args: args})
	return 1, nil
}

func TestStageRunRepository_Lifecycle(t *testing.T) {
	db := &recordingDB{}
	repo := NewPostgresStageRunRepository(db)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return at }
	ctx := context.Background()

	id, err := repo.Start(ctx, " Acme ", job.StageSkills)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	require.NoError(t, repo.Log(ctx, id, "", "fetched 3 pages"))
	require.NoError(t, repo.Log(ctx, id, "warn", "   "))
	require.NoError(t, repo.Finish(ctx, id, StageRunResult{JobsProcessed: 3, JobsCompleted: 2, JobsFailed: 1, ErrorMessage: "one failed"}))

	require.Len(t, db.calls, 3)
	start := db.calls[0]
	assert.True(t, strings.HasPrefix(start.query, "insert into stage_runs"))
	assert.Equal(t, []any{id, "Acme", "stage_3", "running", at}, start.args)

	logCall := db.calls[1]
	assert.True(t, strings.HasPrefix(logCall.query, "insert into stage_run_logs"))
	assert.Equal(t, "info", logCall.args[2])

	finish := db.calls[2]
	assert.True(t, strings.HasPrefix(finish.query, "update stage_runs"))
	assert.Equal(t, "success", finish.args[2])
	assert.Equal(t, "one failed", finish.args[6])
}

func TestStageRunRepository_NilRunIsNoop(t *testing.T) {
	db := &recordingDB{}
	repo := NewPostgresStageRunRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Finish(ctx, uuid.Nil, StageRunResult{}))
	require.NoError(t, repo.Log(ctx, uuid.Nil, "info", "x"))
	assert.Empty(t, db.calls)

	require.NoError(t, repo.Finish(ctx, uuid.New(), StageRunResult{Status: StageStatusSkipped}))
	require.Len(t, db.calls, 1)
	assert.Equal(t, "skipped", db.calls[0].args[2])
	assert.Nil(t, db.calls[0].args[6])
}
