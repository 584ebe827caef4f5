package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"job-pipeline/internal/infrastructure/cache"
	"job-pipeline/internal/repository"
)

const (
	latestRunsLimit   = 20
	defaultMetricDays = 7
	maxMetricDays     = 92
)

// StatusQuery scopes the status view. A zero From or To is filled from the
// other end of a seven day window ending today.
type StatusQuery struct {
	Company string
	From    time.Time
	To      time.Time
}

type PipelineStatus struct {
	Company     string                      `json:"company,omitempty"`
	Counts      repository.StageCounts      `json:"counts"`
	LatestRuns  []repository.StageRun       `json:"latest_runs"`
	From        string                      `json:"from"`
	To          string                      `json:"to"`
	Daily       []repository.DailyAggregate `json:"daily"`
	Database    string                      `json:"database"`
	Cache       string                      `json:"cache"`
	LastUpdated time.Time                   `json:"last_updated"`
}

type PipelineStatusUsecase interface {
	GetStatus(ctx context.Context, q StatusQuery) (PipelineStatus, error)
}

type PipelineStatusService struct {
	jobs    repository.JobListingRepository
	runs    repository.StageRunRepository
	metrics repository.DailyMetricsRepository
	db      HealthChecker
	cacheHC HealthChecker
	cache   ResponseCache
	log     *log.Logger
	now     func() time.Time
}

func NewPipelineStatusUsecase(
	jobs repository.JobListingRepository,
	runs repository.StageRunRepository,
	metrics repository.DailyMetricsRepository,
	db HealthChecker,
	cacheHC HealthChecker,
	cache ResponseCache,
	logger *log.Logger,
) *PipelineStatusService {
	if logger == nil {
		logger = log.Default()
	}
	return &PipelineStatusService{
		jobs:    jobs,
		runs:    runs,
		metrics: metrics,
		db:      db,
		cacheHC: cacheHC,
		cache:   cache,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetStatus aggregates stage counts, recent runs, daily metrics and
// dependency health. The unfiltered default view is cached briefly.
func (u *PipelineStatusService) GetStatus(ctx context.Context, q StatusQuery) (PipelineStatus, error) {
	company := strings.TrimSpace(q.Company)
	cacheable := company == "" && q.From.IsZero() && q.To.IsZero() && u.cache != nil
	from, to, err := u.metricWindow(q.From, q.To)
	if err != nil {
		return PipelineStatus{}, err
	}
	if cacheable {
		var cached PipelineStatus
		if hit, err := u.cache.GetJSON(ctx, cache.StatusKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	out := PipelineStatus{
		Company:    company,
		LatestRuns: []repository.StageRun{},
		From:       from.Format(time.DateOnly),
		To:         to.Format(time.DateOnly),
		Daily:      []repository.DailyAggregate{},
	}
	var (
		errCounts error
		errRuns   error
		errDaily  error
		wg        sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		out.Counts, errCounts = u.jobs.CountByStage(ctx, company)
		if errCounts != nil {
			u.log.Printf("pipeline_status step=counts status=error err=%v", errCounts)
		}
	}()

	if u.runs != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runs, err := u.runs.Latest(ctx, latestRunsLimit)
			if err != nil {
				errRuns = err
				u.log.Printf("pipeline_status step=runs status=error err=%v", err)
				return
			}
			for _, r := range runs {
				if company == "" || strings.EqualFold(r.Company, company) {
					out.LatestRuns = append(out.LatestRuns, r)
				}
			}
		}()
	}

	if u.metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			daily, err := u.metrics.Aggregates(ctx, from, to, company)
			if err != nil {
				errDaily = err
				u.log.Printf("pipeline_status step=daily status=error err=%v", err)
				return
			}
			out.Daily = append(out.Daily, daily...)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		out.Database = HealthOf(ctx, u.db)
		out.Cache = HealthOf(ctx, u.cacheHC)
	}()

	wg.Wait()
	if errCounts != nil {
		return PipelineStatus{}, fmt.Errorf("%w: %v", ErrInternal, errCounts)
	}
	if errRuns != nil {
		return PipelineStatus{}, fmt.Errorf("%w: %v", ErrInternal, errRuns)
	}
	if errDaily != nil {
		return PipelineStatus{}, fmt.Errorf("%w: %v", ErrInternal, errDaily)
	}
	out.LastUpdated = u.now()

	if cacheable {
		if err := u.cache.SetJSON(ctx, cache.StatusKey, out, 0); err != nil {
			u.log.Printf("pipeline_status step=cache status=error err=%v", err)
		}
	}
	return out, nil
}

// metricWindow resolves the inclusive day range for daily metrics.
func (u *PipelineStatusService) metricWindow(from, to time.Time) (time.Time, time.Time, error) {
	span := (defaultMetricDays - 1) * 24 * time.Hour
	switch {
	case from.IsZero() && to.IsZero():
		to = u.now()
		from = to.Add(-span)
	case from.IsZero():
		from = to.Add(-span)
	case to.IsZero():
		to = u.now()
	}
	from, to = dayOf(from), dayOf(to)
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to %s before from %s", ErrInvalidInput, to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	if to.Sub(from) >= maxMetricDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range longer than %d days", ErrInvalidInput, maxMetricDays)
	}
	return from, to, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HealthOf reports "up", "down" or "disabled" for a nil checker.
func HealthOf(ctx context.Context, hc HealthChecker) string {
	if hc == nil {
		return "disabled"
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := hc.Ping(pctx); err != nil {
		return "down"
	}
	return "up"
}
