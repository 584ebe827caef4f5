package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"job-pipeline/internal/database"
	"job-pipeline/internal/domain/job"

	"github.com/jackc/pgx/v5"
)

var ErrInvalidStage = errors.New("stage has no completion flag")

type JobListingRepository interface {
	GetBySignature(ctx context.Context, signature string) (*job.Record, error)
	Upsert(ctx context.Context, rec job.Record) (job.Record, error)
	Apply(ctx context.Context, signature string, update job.StageUpdate) (job.Record, error)
	FindIncomplete(ctx context.Context, stage job.StageID, filter IncompleteFilter) ([]job.Record, error)
	ListKnownSignatures(ctx context.Context, company string) (map[string]struct{}, error)
	SyncActive(ctx context.Context, company string, seen []string) (SyncResult, error)
	List(ctx context.Context, filter ListFilter) ([]job.Record, int, error)
	CountByStage(ctx context.Context, company string) (StageCounts, error)
	CleanupInactive(ctx context.Context, before time.Time) (int64, error)
}

type IncompleteFilter struct {
	Company string
	Limit   int
}

type ListFilter struct {
	Company         string
	WorkMode        string
	ExperienceLevel string
	Technology      string
	Active          *bool
	Limit           int
	Offset          int
}

type SyncResult struct {
	Deactivated int64
	Reactivated int64
}

type StageCounts struct {
	Stage1Only      int `json:"stage_1_only"`
	Stage2Completed int `json:"stage_2_completed"`
	Stage3Completed int `json:"stage_3_completed"`
	Stage4Completed int `json:"stage_4_completed"`
	FullyProcessed  int `json:"fully_processed"`
	Active          int `json:"active"`
	Inactive        int `json:"inactive"`
}

type PostgresJobListingRepository struct {
	db  database.DB
	now func() time.Time
}

func NewPostgresJobListingRepository(db database.DB) *PostgresJobListingRepository {
	return &PostgresJobListingRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var stageColumns = map[job.StageID]string{
	job.StageMetadata:   "stage_2_completed",
	job.StageSkills:     "stage_3_completed",
	job.StageTechnology: "stage_4_completed",
}

func (r *PostgresJobListingRepository) GetBySignature(ctx context.Context, signature string) (*job.Record, error) {
	row := r.db.QueryRow(ctx, `SELECT document FROM job_listings WHERE signature = $1`, signature)
	rec, err := scanDocument(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Upsert folds a full record into whatever is stored under its signature.
func (r *PostgresJobListingRepository) Upsert(ctx context.Context, rec job.Record) (job.Record, error) {
	sig := rec.Signature
	if sig == "" {
		sig = job.Signature(rec.URL, rec.Title, rec.Company)
	}
	return r.mutate(ctx, sig, func(existing *job.Record, now time.Time) (job.Record, error) {
		return job.MergeRecords(existing, rec, now)
	})
}

// Apply merges one stage update into the stored record. Only a discovery
// update may create a record.
func (r *PostgresJobListingRepository) Apply(ctx context.Context, signature string, update job.StageUpdate) (job.Record, error) {
	if update == nil {
		return job.Record{}, fmt.Errorf("apply: nil update")
	}
	return r.mutate(ctx, signature, func(existing *job.Record, now time.Time) (job.Record, error) {
		if existing == nil && update.Stage() != job.StageDiscovery {
			return job.Record{}, fmt.Errorf("apply %s to %s: %w", update.Stage().Tag(), signature, job.ErrNotFound)
		}
		return job.Merge(existing, update, update.Stage(), now)
	})
}

// mutate is the only write path for documents. The row lock taken by
// SELECT ... FOR UPDATE serializes concurrent merges on one signature; the
// merged document is computed in memory before anything is written.
func (r *PostgresJobListingRepository) mutate(
	ctx context.Context,
	signature string,
	fn func(existing *job.Record, now time.Time) (job.Record, error),
) (job.Record, error) {
	if strings.TrimSpace(signature) == "" {
		return job.Record{}, fmt.Errorf("mutate: empty signature")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return job.Record{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var existing *job.Record
	rec, err := scanDocument(tx.QueryRow(ctx, `SELECT document FROM job_listings WHERE signature = $1 FOR UPDATE`, signature))
	switch {
	case err == nil:
		existing = &rec
	case isNoRows(err):
	default:
		return job.Record{}, err
	}

	merged, err := fn(existing, r.now())
	if err != nil {
		return job.Record{}, err
	}
	if merged.Signature != signature {
		return job.Record{}, &job.ValidationError{Stage: job.StageDiscovery, Field: "signature", Reason: "merged record changed identity"}
	}

	if existing != nil && job.SameContent(*existing, merged) {
		return *existing, tx.Commit(ctx)
	}

	doc, err := json.Marshal(merged)
	if err != nil {
		return job.Record{}, fmt.Errorf("encode document: %w", err)
	}

	var affected int64
	if existing == nil {
		affected, err = tx.Exec(ctx,
			`INSERT INTO job_listings (signature, company, active, stage_2_completed, stage_3_completed, stage_4_completed, document, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (signature) DO NOTHING`,
			merged.Signature, merged.Company, merged.Active,
			merged.Stage2Completed, merged.Stage3Completed, merged.Stage4Completed,
			doc, merged.CreatedAt, merged.UpdatedAt,
		)
	} else {
		affected, err = tx.Exec(ctx,
			`UPDATE job_listings
			 SET active = $2, stage_2_completed = $3, stage_3_completed = $4, stage_4_completed = $5, document = $6, updated_at = $7
			 WHERE signature = $1`,
			merged.Signature, merged.Active,
			merged.Stage2Completed, merged.Stage3Completed, merged.Stage4Completed,
			doc, merged.UpdatedAt,
		)
	}
	if err != nil {
		return job.Record{}, err
	}
	if affected == 0 {
		return job.Record{}, fmt.Errorf("write %s: %w", signature, job.ErrPersistenceConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return job.Record{}, err
	}
	return merged, nil
}

func (r *PostgresJobListingRepository) FindIncomplete(ctx context.Context, stage job.StageID, filter IncompleteFilter) ([]job.Record, error) {
	column, ok := stageColumns[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStage, stage.Tag())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `SELECT document FROM job_listings WHERE active AND NOT ` + column
	args := []any{}
	if c := strings.TrimSpace(filter.Company); c != "" {
		args = append(args, c)
		query += fmt.Sprintf(" AND company = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at ASC, signature ASC LIMIT $%d", len(args))

	return r.queryDocuments(ctx, query, args...)
}

// ListKnownSignatures includes inactive records so a rediscovered listing is
// reactivated instead of inserted again.
func (r *PostgresJobListingRepository) ListKnownSignatures(ctx context.Context, company string) (map[string]struct{}, error) {
	query := `SELECT signature FROM job_listings`
	var args []any
	if c := strings.TrimSpace(company); c != "" {
		query += ` WHERE company = $1`
		args = append(args, c)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, err
		}
		out[sig] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SyncActive soft-deletes the company's records missing from the latest
// discovery pass and reactivates the ones seen again.
func (r *PostgresJobListingRepository) SyncActive(ctx context.Context, company string, seen []string) (SyncResult, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return SyncResult{}, fmt.Errorf("sync active: empty company")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `SELECT signature, active FROM job_listings WHERE company = $1 FOR UPDATE`, company)
	if err != nil {
		return SyncResult{}, err
	}
	current := map[string]bool{}
	for rows.Next() {
		var sig string
		var active bool
		if err := rows.Scan(&sig, &active); err != nil {
			rows.Close()
			return SyncResult{}, err
		}
		current[sig] = active
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SyncResult{}, err
	}

	seenSet := make(map[string]struct{}, len(seen))
	for _, s := range seen {
		seenSet[s] = struct{}{}
	}

	var toDeactivate, toReactivate []string
	for sig, active := range current {
		_, present := seenSet[sig]
		switch {
		case active && !present:
			toDeactivate = append(toDeactivate, sig)
		case !active && present:
			toReactivate = append(toReactivate, sig)
		}
	}

	now := r.now()
	var res SyncResult
	if res.Deactivated, err = setActive(ctx, tx, toDeactivate, false, now); err != nil {
		return SyncResult{}, err
	}
	if res.Reactivated, err = setActive(ctx, tx, toReactivate, true, now); err != nil {
		return SyncResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SyncResult{}, err
	}
	return res, nil
}

func setActive(ctx context.Context, tx database.Tx, signatures []string, active bool, now time.Time) (int64, error) {
	if len(signatures) == 0 {
		return 0, nil
	}
	return tx.Exec(ctx,
		`UPDATE job_listings
		 SET active = $2,
		     updated_at = GREATEST(created_at, $3),
		     document = document || jsonb_build_object('active', $2::boolean, 'updated_at', GREATEST(created_at, $3))
		 WHERE signature = ANY($1) AND active <> $2`,
		signatures, active, now,
	)
}

func (r *PostgresJobListingRepository) List(ctx context.Context, filter ListFilter) ([]job.Record, int, error) {
	where, args := buildListWhere(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM job_listings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT document FROM job_listings%s ORDER BY updated_at DESC, signature ASC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	recs, err := r.queryDocuments(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func buildListWhere(f ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if v := strings.TrimSpace(f.Company); v != "" {
		add("company = $%d", v)
	}
	if f.Active != nil {
		add("active = $%d", *f.Active)
	}
	if v := strings.TrimSpace(f.WorkMode); v != "" {
		add("document->>'work_mode' = $%d", v)
	}
	if v := strings.TrimSpace(f.ExperienceLevel); v != "" {
		add("document->>'experience_level' = $%d", v)
	}
	if v := strings.TrimSpace(f.Technology); v != "" {
		add("EXISTS (SELECT 1 FROM jsonb_array_elements(COALESCE(document->'technologies', '[]'::jsonb)) t WHERE lower(t->>'name') = lower($%d))", v)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PostgresJobListingRepository) CountByStage(ctx context.Context, company string) (StageCounts, error) {
	query := `SELECT
		COUNT(1) FILTER (WHERE active AND NOT stage_2_completed AND NOT stage_3_completed AND NOT stage_4_completed),
		COUNT(1) FILTER (WHERE active AND stage_2_completed),
		COUNT(1) FILTER (WHERE active AND stage_3_completed),
		COUNT(1) FILTER (WHERE active AND stage_4_completed),
		COUNT(1) FILTER (WHERE active AND stage_2_completed AND stage_3_completed AND stage_4_completed),
		COUNT(1) FILTER (WHERE active),
		COUNT(1) FILTER (WHERE NOT active)
		FROM job_listings`
	var args []any
	if c := strings.TrimSpace(company); c != "" {
		query += ` WHERE company = $1`
		args = append(args, c)
	}

	var out StageCounts
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&out.Stage1Only,
		&out.Stage2Completed,
		&out.Stage3Completed,
		&out.Stage4Completed,
		&out.FullyProcessed,
		&out.Active,
		&out.Inactive,
	)
	if err != nil {
		return StageCounts{}, err
	}
	return out, nil
}

// CleanupInactive physically removes records inactive since before the cutoff.
// Active records are never deleted.
func (r *PostgresJobListingRepository) CleanupInactive(ctx context.Context, before time.Time) (int64, error) {
	return r.db.Exec(ctx, `DELETE FROM job_listings WHERE NOT active AND updated_at < $1`, before)
}

func (r *PostgresJobListingRepository) queryDocuments(ctx context.Context, query string, args ...any) ([]job.Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]job.Record, 0)
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanDocument(row database.Row) (job.Record, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return job.Record{}, err
	}
	var rec job.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return job.Record{}, fmt.Errorf("decode document: %w", err)
	}
	return rec, nil
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows || errors.Is(err, pgx.ErrNoRows)
}
