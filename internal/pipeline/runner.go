package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"job-pipeline/internal/company"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/cache"
	"job-pipeline/internal/infrastructure/notify"
	"job-pipeline/internal/repository"

	"github.com/google/uuid"
)

type StageOutcome struct {
	RunID     uuid.UUID
	Company   string
	Stage     job.StageID
	Status    repository.StageStatus
	Processed int
	Completed int
	Failed    int
	Err       error
	Duration  time.Duration
}

type stageCounts struct {
	processed   int
	completed   int
	failed      int
	deactivated int
	reactivated int
}

// runScope carries the per (company, stage) run id into item level logging.
type runScope struct {
	p       *Pipeline
	runID   uuid.UUID
	company string
	stage   job.StageID
}

func (s runScope) logf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.p.log.Printf("pipeline=%s company=%s level=%s %s", s.stage.Tag(), s.company, level, msg)
	if s.p.deps.Runs == nil || s.runID == uuid.Nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.p.deps.Runs.Log(ctx, s.runID, level, msg); err != nil {
		s.p.log.Printf("pipeline=%s company=%s status=warn run_log_err=%v", s.stage.Tag(), s.company, err)
	}
}

// Run executes every enabled stage in order. Each stage finishes for all
// companies before the next one starts.
func (p *Pipeline) Run(ctx context.Context, companies []company.Company) []StageOutcome {
	start := time.Now()
	p.log.Printf("pipeline=all status=started companies=%d stages=%d", len(companies), len(p.opts.Stages))

	var out []StageOutcome
	for _, stage := range job.AllStages {
		if ctx.Err() != nil {
			break
		}
		if !p.stageEnabled(stage) {
			continue
		}
		out = append(out, p.RunStage(ctx, stage, companies)...)
	}

	p.log.Printf("pipeline=all status=finished runs=%d duration=%s", len(out), time.Since(start).Truncate(time.Millisecond))
	return out
}

// RunStage fans one stage out over the enabled companies.
func (p *Pipeline) RunStage(ctx context.Context, stage job.StageID, companies []company.Company) []StageOutcome {
	enabled := make([]company.Company, 0, len(companies))
	for _, c := range companies {
		if c.IsEnabled() {
			enabled = append(enabled, c)
		}
	}

	var mu sync.Mutex
	out := make([]StageOutcome, 0, len(enabled))
	Each(ctx, p.opts.MaxConcurrency, p.starts, enabled, func(ctx context.Context, c company.Company) Result {
		o := p.runCompanyStage(ctx, stage, c)
		mu.Lock()
		out = append(out, o)
		mu.Unlock()
		return Result{Key: c.Name, Err: o.Err}
	})
	return out
}

func (p *Pipeline) runCompanyStage(ctx context.Context, stage job.StageID, c company.Company) StageOutcome {
	start := time.Now()
	o := StageOutcome{Company: c.Name, Stage: stage}

	if p.deps.Runs != nil {
		id, err := p.deps.Runs.Start(ctx, c.Name, stage)
		if err != nil {
			p.log.Printf("pipeline=%s company=%s status=warn run_start_err=%v", stage.Tag(), c.Name, err)
		}
		o.RunID = id
	}
	scope := runScope{p: p, runID: o.RunID, company: c.Name, stage: stage}

	counts, err := p.withLock(ctx, stage, c, func(ctx context.Context) (stageCounts, error) {
		if stage == job.StageDiscovery {
			return p.discover(ctx, scope, c)
		}
		return p.enrich(ctx, scope, c)
	})
	o.Processed, o.Completed, o.Failed = counts.processed, counts.completed, counts.failed
	o.Err = err
	o.Status = outcomeStatus(stage, counts, err)
	o.Duration = time.Since(start)

	p.finishRun(o)
	p.recordDaily(o, counts)
	if err != nil && !errors.Is(err, ErrCompanyLocked) {
		p.log.Printf("pipeline=%s company=%s status=%s processed=%d completed=%d failed=%d err=%v duration=%s",
			stage.Tag(), c.Name, o.Status, o.Processed, o.Completed, o.Failed, err, o.Duration.Truncate(time.Millisecond))
	} else {
		p.log.Printf("pipeline=%s company=%s status=%s processed=%d completed=%d failed=%d duration=%s",
			stage.Tag(), c.Name, o.Status, o.Processed, o.Completed, o.Failed, o.Duration.Truncate(time.Millisecond))
	}

	if o.Completed > 0 {
		p.afterWrite(ctx, o)
	}
	return o
}

func outcomeStatus(stage job.StageID, counts stageCounts, err error) repository.StageStatus {
	switch {
	case errors.Is(err, ErrCompanyLocked):
		return repository.StageStatusSkipped
	case err != nil:
		return repository.StageStatusFailed
	case stage != job.StageDiscovery && counts.processed == 0:
		return repository.StageStatusSkipped
	case counts.processed > 0 && counts.completed == 0:
		return repository.StageStatusFailed
	}
	return repository.StageStatusSuccess
}

func (p *Pipeline) withLock(ctx context.Context, stage job.StageID, c company.Company, fn func(ctx context.Context) (stageCounts, error)) (stageCounts, error) {
	if p.deps.Cache == nil {
		return fn(ctx)
	}
	key := cache.LockKey(c.Name, stage.Tag())
	token, ok, err := p.deps.Cache.AcquireLock(ctx, key, p.opts.LockTTL)
	if err != nil {
		p.log.Printf("pipeline=%s company=%s status=warn lock_err=%v", stage.Tag(), c.Name, err)
		return fn(ctx)
	}
	if !ok {
		return stageCounts{}, ErrCompanyLocked
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.deps.Cache.ReleaseLock(rctx, key, token); err != nil {
			p.log.Printf("pipeline=%s company=%s status=warn unlock_err=%v", stage.Tag(), c.Name, err)
		}
	}()
	return fn(ctx)
}

func (p *Pipeline) finishRun(o StageOutcome) {
	if p.deps.Runs == nil || o.RunID == uuid.Nil {
		return
	}
	res := repository.StageRunResult{
		Status:        o.Status,
		JobsProcessed: o.Processed,
		JobsCompleted: o.Completed,
		JobsFailed:    o.Failed,
	}
	if o.Err != nil {
		res.ErrorMessage = o.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.deps.Runs.Finish(ctx, o.RunID, res); err != nil {
		p.log.Printf("pipeline=%s company=%s status=warn run_finish_err=%v", o.Stage.Tag(), o.Company, err)
	}
}

// recordDaily adds a finished run to the company's daily rollup. Skipped runs
// are not counted.
func (p *Pipeline) recordDaily(o StageOutcome, counts stageCounts) {
	if p.deps.Metrics == nil || o.Status == repository.StageStatusSkipped {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := repository.DailyMetricsDelta{
		Date:      p.now(),
		Company:   o.Company,
		Succeeded: o.Status == repository.StageStatusSuccess,
	}
	if o.Stage == job.StageDiscovery {
		d.NewJobs = counts.completed
		d.Deactivated = counts.deactivated
		d.Reactivated = counts.reactivated
	}
	if totals, err := p.deps.Jobs.CountByStage(ctx, o.Company); err != nil {
		p.log.Printf("pipeline=%s company=%s status=warn totals_err=%v", o.Stage.Tag(), o.Company, err)
	} else {
		d.TotalActive, d.TotalInactive = &totals.Active, &totals.Inactive
	}
	if err := p.deps.Metrics.Record(ctx, d); err != nil {
		p.log.Printf("pipeline=%s company=%s status=warn daily_metrics_err=%v", o.Stage.Tag(), o.Company, err)
	}
}

func (p *Pipeline) afterWrite(ctx context.Context, o StageOutcome) {
	if p.deps.Cache != nil {
		if err := p.deps.Cache.InvalidateListings(ctx); err != nil {
			p.log.Printf("pipeline=%s company=%s status=warn cache_err=%v", o.Stage.Tag(), o.Company, err)
		}
	}
	if p.deps.Notifier == nil {
		return
	}
	runID := ""
	if o.RunID != uuid.Nil {
		runID = o.RunID.String()
	}
	err := p.deps.Notifier.StageCompleted(ctx, notify.Completion{
		RunID:     runID,
		Company:   o.Company,
		Stage:     o.Stage.Tag(),
		Status:    string(o.Status),
		Processed: o.Processed,
		Completed: o.Completed,
		Failed:    o.Failed,
	})
	if err != nil {
		p.log.Printf("pipeline=%s company=%s status=warn notify_err=%v", o.Stage.Tag(), o.Company, err)
	}
}
