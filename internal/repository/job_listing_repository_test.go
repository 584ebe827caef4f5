package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"job-pipeline/internal/domain/job"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(db *fakeDB, start time.Time) *PostgresJobListingRepository {
	r := NewPostgresJobListingRepository(db)
	var mu sync.Mutex
	tick := start
	r.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	return r
}

var (
	base     = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	backend  = job.Candidate{Title: "Backend Engineer", URL: "https://x.com/jobs/1", Company: "Acme"}
	analyst  = job.Candidate{Title: "Data Analyst", URL: "https://x.com/jobs/2", Company: "Acme"}
	designer = job.Candidate{Title: "Designer", URL: "https://y.com/jobs/9", Company: "Globex"}
)

func metadataUpdate() job.MetadataUpdate {
	return job.MetadataUpdate{
		Location:        "Costa Rica",
		WorkMode:        job.WorkModeOnsite,
		EmploymentType:  job.EmploymentFullTime,
		ExperienceLevel: job.ExperienceSenior,
		JobFunction:     job.FunctionTechnologyEngineering,
		Description:     "Payments backend.",
	}
}

func TestApply_CreateAndGet(t *testing.T) {
	db := newFakeDB()
	repo := newTestRepo(db, base)
	ctx := context.Background()

	rec, err := repo.Apply(ctx, backend.Signature(), backend.Update())
	require.NoError(t, err)
	assert.Equal(t, backend.Signature(), rec.Signature)
	assert.True(t, rec.Active)

	got, err := repo.GetBySignature(ctx, backend.Signature())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Backend Engineer", got.Title)

	missing, err := repo.GetBySignature(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestApply_EnrichmentRequiresExistingRecord(t *testing.T) {
	repo := newTestRepo(newFakeDB(), base)
	_, err := repo.Apply(context.Background(), backend.Signature(), metadataUpdate())
	assert.True(t, errors.Is(err, job.ErrNotFound))
}

func TestApply_ValidationLeavesStoredRecordUntouched(t *testing.T) {
	db := newFakeDB()
	repo := newTestRepo(db, base)
	ctx := context.Background()

	_, err := repo.Apply(ctx, backend.Signature(), backend.Update())
	require.NoError(t, err)
	writes := db.writes

	bad := metadataUpdate()
	bad.WorkMode = "Anywhere"
	_, err = repo.Apply(ctx, backend.Signature(), bad)
	assert.True(t, job.IsValidation(err))
	assert.Equal(t, writes, db.writes)

	got, err := repo.GetBySignature(ctx, backend.Signature())
	require.NoError(t, err)
	assert.Empty(t, got.Location)
}

func TestApply_NoOpMergeSkipsWrite(t *testing.T) {
	db := newFakeDB()
	repo := newTestRepo(db, base)
	ctx := context.Background()

	_, err := repo.Apply(ctx, backend.Signature(), backend.Update())
	require.NoError(t, err)
	first, err := repo.Apply(ctx, backend.Signature(), metadataUpdate())
	require.NoError(t, err)
	writes := db.writes

	second, err := repo.Apply(ctx, backend.Signature(), metadataUpdate())
	require.NoError(t, err)
	assert.Equal(t, writes, db.writes)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
}

func TestApply_InsertConflict(t *testing.T) {
	db := newFakeDB()
	db.insertConflict = true
	repo := newTestRepo(db, base)

	_, err := repo.Apply(context.Background(), backend.Signature(), backend.Update())
	assert.True(t, errors.Is(err, job.ErrPersistenceConflict))
}

func TestApply_ConcurrentStagesOnSameSignature(t *testing.T) {
	db := newFakeDB()
	repo := newTestRepo(db, base)
	ctx := context.Background()

	_, err := repo.Apply(ctx, backend.Signature(), backend.Update())
	require.NoError(t, err)

	updates := []job.StageUpdate{
		metadataUpdate(),
		job.SkillsUpdate{Responsibilities: []string{"Ship"}, SkillMustHave: []string{"Go"}},
		job.TechnologyUpdate{Technologies: []job.Technology{{Name: "Go", Category: "programming", Required: true}}},
		job.TechnologyUpdate{Technologies: []job.Technology{{Name: "PostgreSQL", Category: "database"}}},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(updates)*3)
	for i := 0; i < 3; i++ {
		for _, u := range updates {
			wg.Add(1)
			go func(u job.StageUpdate) {
				defer wg.Done()
				_, err := repo.Apply(ctx, backend.Signature(), u)
				errs <- err
			}(u)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.GetBySignature(ctx, backend.Signature())
	require.NoError(t, err)
	assert.True(t, got.Stage2Completed)
	assert.True(t, got.Stage3Completed)
	assert.True(t, got.Stage4Completed)
	assert.Len(t, got.Technologies, 2)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestUpsert_MergesInsteadOfOverwriting(t *testing.T) {
	db := newFakeDB()
	repo := newTestRepo(db, base)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, job.Record{
		Title: backend.Title, URL: backend.URL, Company: backend.Company,
		Location: "LATAM",
		Technologies: []job.Technology{
			{Name: "Python", Required: true},
		},
	})
	require.NoError(t, err)

	rec, err := repo.Upsert(ctx, job.Record{
		Title: backend.Title, URL: backend.URL, Company: backend.Company,
		Technologies: []job.Technology{
			{Name: "python", Category: "programming"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "LATAM", rec.Location)
	require.Len(t, rec.Technologies, 1)
	assert.True(t, rec.Technologies[0].Required)
	assert.Equal(t, "programming", rec.Technologies[0].Category)
}

func TestFindIncomplete(t *testing.T) {
	db := newFakeDB()
	repo := newTestRepo(db, base)
	ctx := context.Background()

	for _, c := range []job.Candidate{backend, analyst, designer} {
		_, err := repo.Apply(ctx, c.Signature(), c.Update())
		require.NoError(t, err)
	}
	_, err := repo.Apply(ctx, backend.Signature(), metadataUpdate())
	require.NoError(t, err)

	pending, err := repo.FindIncomplete(ctx, job.StageMetadata, IncompleteFilter{Company: "Acme"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, analyst.Signature(), pending[0].Signature)

	all, err := repo.FindIncomplete(ctx, job.StageSkills, IncompleteFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.FindIncomplete(ctx, job.StageDiscovery, IncompleteFilter{})
	assert.True(t, errors.Is(err, ErrInvalidStage))
}

func TestSyncActiveAndKnownSignatures(t *testing.T) {
	db := newFakeDB()
	repo := newTestRepo(db, base)
	ctx := context.Background()

	for _, c := range []job.Candidate{backend, analyst, designer} {
		_, err := repo.Apply(ctx, c.Signature(), c.Update())
		require.NoError(t, err)
	}

	known, err := repo.ListKnownSignatures(ctx, "Acme")
	require.NoError(t, err)
	assert.Len(t, known, 2)

	res, err := repo.SyncActive(ctx, "Acme", []string{backend.Signature()})
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Deactivated: 1}, res)

	gone, err := repo.GetBySignature(ctx, analyst.Signature())
	require.NoError(t, err)
	assert.False(t, gone.Active)

	pending, err := repo.FindIncomplete(ctx, job.StageMetadata, IncompleteFilter{Company: "Acme"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, backend.Signature(), pending[0].Signature)

	known, err = repo.ListKnownSignatures(ctx, "Acme")
	require.NoError(t, err)
	assert.Contains(t, known, analyst.Signature())

	res, err = repo.SyncActive(ctx, "Acme", []string{backend.Signature(), analyst.Signature()})
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Reactivated: 1}, res)

	other, err := repo.GetBySignature(ctx, designer.Signature())
	require.NoError(t, err)
	assert.True(t, other.Active)
}

func TestCountByStageAndCleanup(t *testing.T) {
	db := newFakeDB()
	repo := newTestRepo(db, base)
	ctx := context.Background()

	for _, c := range []job.Candidate{backend, analyst} {
		_, err := repo.Apply(ctx, c.Signature(), c.Update())
		require.NoError(t, err)
	}
	_, err := repo.Apply(ctx, backend.Signature(), metadataUpdate())
	require.NoError(t, err)
	_, err = repo.SyncActive(ctx, "Acme", []string{backend.Signature()})
	require.NoError(t, err)

	counts, err := repo.CountByStage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, StageCounts{Stage2Completed: 1, Active: 1, Inactive: 1}, counts)

	n, err := repo.CleanupInactive(ctx, base)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.CleanupInactive(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetBySignature(ctx, backend.Signature())
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestBuildListWhere(t *testing.T) {
	active := true
	where, args := buildListWhere(ListFilter{
		Company:    "Acme",
		Active:     &active,
		WorkMode:   "Remote",
		Technology: "Go",
	})
	assert.Equal(t,
		" WHERE company = $1 AND active = $2 AND document->>'work_mode' = $3 AND EXISTS (SELECT 1 FROM jsonb_array_elements(COALESCE(document->'technologies', '[]'::jsonb)) t WHERE lower(t->>'name') = lower($4))",
		where)
	assert.Equal(t, []any{"Acme", true, "Remote", "Go"}, args)

	where, args = buildListWhere(ListFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}
