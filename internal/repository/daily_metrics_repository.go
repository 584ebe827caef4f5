package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"job-pipeline/internal/database"
)

type OverallStatus string

const (
	OverallSuccess OverallStatus = "success"
	OverallPartial OverallStatus = "partial"
	OverallFailed  OverallStatus = "failed"
)

// DailyMetricsDelta is one stage run's contribution to a company's day.
// Counters are added to the stored row; totals replace it when known.
type DailyMetricsDelta struct {
	Date          time.Time
	Company       string
	NewJobs       int
	Deactivated   int
	Reactivated   int
	TotalActive   *int
	TotalInactive *int
	Succeeded     bool
}

// DailyAggregate sums every company's row for one day.
type DailyAggregate struct {
	Date                string `json:"date"`
	Companies           int    `json:"companies"`
	NewJobsFound        int    `json:"new_jobs_found"`
	JobsDeactivated     int    `json:"jobs_deactivated"`
	JobsReactivated     int    `json:"jobs_reactivated"`
	TotalActiveJobs     int    `json:"total_active_jobs"`
	TotalInactiveJobs   int    `json:"total_inactive_jobs"`
	StagesSucceeded     int    `json:"stages_succeeded"`
	StagesFailed        int    `json:"stages_failed"`
	SuccessfulCompanies int    `json:"successful_companies"`
	PartialCompanies    int    `json:"partial_companies"`
	FailedCompanies     int    `json:"failed_companies"`
}

type DailyMetricsRepository interface {
	Record(ctx context.Context, d DailyMetricsDelta) error
	Aggregates(ctx context.Context, from, to time.Time, company string) ([]DailyAggregate, error)
}

type PostgresDailyMetricsRepository struct {
	db  database.DB
	now func() time.Time
}

func NewPostgresDailyMetricsRepository(db database.DB) *PostgresDailyMetricsRepository {
	return &PostgresDailyMetricsRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Record upserts the (date, company) row. overall_status is recomputed from
// the accumulated stage counters: no failures is success, no successes is
// failed, anything else partial.
func (r *PostgresDailyMetricsRepository) Record(ctx context.Context, d DailyMetricsDelta) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("nil db")
	}
	company := strings.TrimSpace(d.Company)
	if company == "" {
		return fmt.Errorf("daily metrics: empty company")
	}
	succeeded, failed := 0, 1
	if d.Succeeded {
		succeeded, failed = 1, 0
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO company_daily_metrics AS m
		   (metric_date, company, new_jobs_found, jobs_deactivated, jobs_reactivated,
		    total_active_jobs, total_inactive_jobs, stages_succeeded, stages_failed, overall_status, updated_at)
		 VALUES ($1,$2,$3,$4,$5,COALESCE($6::int, 0),COALESCE($7::int, 0),$8,$9,$10,$11)
		 ON CONFLICT (metric_date, company) DO UPDATE SET
		   new_jobs_found = m.new_jobs_found + EXCLUDED.new_jobs_found,
		   jobs_deactivated = m.jobs_deactivated + EXCLUDED.jobs_deactivated,
		   jobs_reactivated = m.jobs_reactivated + EXCLUDED.jobs_reactivated,
		   total_active_jobs = COALESCE($6::int, m.total_active_jobs),
		   total_inactive_jobs = COALESCE($7::int, m.total_inactive_jobs),
		   stages_succeeded = m.stages_succeeded + EXCLUDED.stages_succeeded,
		   stages_failed = m.stages_failed + EXCLUDED.stages_failed,
		   overall_status = CASE
		     WHEN m.stages_failed + EXCLUDED.stages_failed = 0 THEN 'success'
		     WHEN m.stages_succeeded + EXCLUDED.stages_succeeded = 0 THEN 'failed'
		     ELSE 'partial'
		   END,
		   updated_at = EXCLUDED.updated_at`,
		metricDate(d.Date), company, d.NewJobs, d.Deactivated, d.Reactivated,
		d.TotalActive, d.TotalInactive, succeeded, failed,
		string(OverallStatusOf(succeeded, failed)), r.now(),
	)
	return err
}

// Aggregates returns one row per day in [from, to], oldest first. An empty
// company covers every company.
func (r *PostgresDailyMetricsRepository) Aggregates(ctx context.Context, from, to time.Time, company string) ([]DailyAggregate, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("nil db")
	}
	from, to = metricDate(from), metricDate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("daily metrics: range end %s before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	rows, err := r.db.Query(ctx,
		`SELECT metric_date, COUNT(*)::int,
		        SUM(new_jobs_found)::int, SUM(jobs_deactivated)::int, SUM(jobs_reactivated)::int,
		        SUM(total_active_jobs)::int, SUM(total_inactive_jobs)::int,
		        SUM(stages_succeeded)::int, SUM(stages_failed)::int,
		        (COUNT(*) FILTER (WHERE overall_status = 'success'))::int,
		        (COUNT(*) FILTER (WHERE overall_status = 'partial'))::int,
		        (COUNT(*) FILTER (WHERE overall_status = 'failed'))::int
		 FROM company_daily_metrics
		 WHERE metric_date BETWEEN $1 AND $2 AND ($3 = '' OR lower(company) = lower($3))
		 GROUP BY metric_date
		 ORDER BY metric_date`,
		from, to, strings.TrimSpace(company),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DailyAggregate, 0)
	for rows.Next() {
		var a DailyAggregate
		var day time.Time
		if err := rows.Scan(
			&day, &a.Companies,
			&a.NewJobsFound, &a.JobsDeactivated, &a.JobsReactivated,
			&a.TotalActiveJobs, &a.TotalInactiveJobs,
			&a.StagesSucceeded, &a.StagesFailed,
			&a.SuccessfulCompanies, &a.PartialCompanies, &a.FailedCompanies,
		); err != nil {
			return nil, err
		}
		a.Date = day.Format(time.DateOnly)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func OverallStatusOf(succeeded, failed int) OverallStatus {
	switch {
	case failed == 0:
		return OverallSuccess
	case succeeded == 0:
		return OverallFailed
	}
	return OverallPartial
}

func metricDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
