package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"job-pipeline/internal/database"
	"job-pipeline/internal/domain/job"

	"github.com/google/uuid"
)

type StageStatus string

const (
	StageStatusRunning StageStatus = "running"
	StageStatusSuccess StageStatus = "success"
	StageStatusFailed  StageStatus = "failed"
	StageStatusSkipped StageStatus = "skipped"
)

type StageRunResult struct {
	Status        StageStatus
	JobsProcessed int
	JobsCompleted int
	JobsFailed    int
	ErrorMessage  string
}

type StageRun struct {
	ID               uuid.UUID   `json:"id"`
	Company          string      `json:"company"`
	Stage            string      `json:"stage"`
	Status           StageStatus `json:"status"`
	JobsProcessed    int         `json:"jobs_processed"`
	JobsCompleted    int         `json:"jobs_completed"`
	JobsFailed       int         `json:"jobs_failed"`
	ExecutionSeconds float64     `json:"execution_seconds"`
	ErrorMessage     *string     `json:"error_message,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       *time.Time  `json:"finished_at,omitempty"`
}

type StageRunRepository interface {
	Start(ctx context.Context, company string, stage job.StageID) (uuid.UUID, error)
	Finish(ctx context.Context, runID uuid.UUID, res StageRunResult) error
	Log(ctx context.Context, runID uuid.UUID, level, message string) error
	Latest(ctx context.Context, limit int) ([]StageRun, error)
}

type PostgresStageRunRepository struct {
	db  database.DB
	now func() time.Time
}

func NewPostgresStageRunRepository(db database.DB) *PostgresStageRunRepository {
	return &PostgresStageRunRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *PostgresStageRunRepository) Start(ctx context.Context, company string, stage job.StageID) (uuid.UUID, error) {
	if r == nil || r.db == nil {
		return uuid.Nil, fmt.Errorf("nil db")
	}
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO stage_runs (id, company, stage, status, started_at) VALUES ($1,$2,$3,$4,$5)`,
		id, strings.TrimSpace(company), stage.Tag(), string(StageStatusRunning), r.now(),
	)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Finish stamps the run outcome; execution time is measured server side from
// started_at.
func (r *PostgresStageRunRepository) Finish(ctx context.Context, runID uuid.UUID, res StageRunResult) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("nil db")
	}
	if runID == uuid.Nil {
		return nil
	}
	status := res.Status
	if status == "" {
		status = StageStatusSuccess
	}
	_, err := r.db.Exec(ctx,
		`UPDATE stage_runs
		 SET finished_at = $2, status = $3, jobs_processed = $4, jobs_completed = $5, jobs_failed = $6,
		     execution_seconds = GREATEST(EXTRACT(EPOCH FROM ($2 - started_at)), 0), error_message = $7
		 WHERE id = $1`,
		runID, r.now(), string(status), res.JobsProcessed, res.JobsCompleted, res.JobsFailed,
		nullableText(res.ErrorMessage),
	)
	return err
}

func (r *PostgresStageRunRepository) Log(ctx context.Context, runID uuid.UUID, level, message string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("nil db")
	}
	if runID == uuid.Nil {
		return nil
	}
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO stage_run_logs (id, stage_run_id, level, message) VALUES ($1,$2,$3,$4)`,
		uuid.New(), runID, level, message,
	)
	return err
}

func (r *PostgresStageRunRepository) Latest(ctx context.Context, limit int) ([]StageRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, company, stage, status, jobs_processed, jobs_completed, jobs_failed,
		        execution_seconds, error_message, started_at, finished_at
		 FROM stage_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]StageRun, 0)
	for rows.Next() {
		var s StageRun
		var status string
		if err := rows.Scan(
			&s.ID, &s.Company, &s.Stage, &status,
			&s.JobsProcessed, &s.JobsCompleted, &s.JobsFailed,
			&s.ExecutionSeconds, &s.ErrorMessage, &s.StartedAt, &s.FinishedAt,
		); err != nil {
			return nil, err
		}
		s.Status = StageStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableText(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
