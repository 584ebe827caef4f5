package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"job-pipeline/internal/company"
	"job-pipeline/internal/config"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/fetcher"
	"job-pipeline/internal/infrastructure/llm"
	"job-pipeline/internal/infrastructure/notify"
	"job-pipeline/internal/repository"

	"golang.org/x/time/rate"
)

var ErrCompanyLocked = errors.New("company stage already running")

type FetcherSource interface {
	For(p company.ParserType) (fetcher.Fetcher, error)
}

// SignatureCache is the optional redis side of the pipeline.
type SignatureCache interface {
	KnownSignatures(ctx context.Context, company string) (map[string]struct{}, bool, error)
	AddKnownSignatures(ctx context.Context, company string, signatures ...string) error
	InvalidateListings(ctx context.Context) error
	InvalidateCompany(ctx context.Context, company string) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type Deps struct {
	Jobs      repository.JobListingRepository
	Runs      repository.StageRunRepository
	Metrics   repository.DailyMetricsRepository
	Fetchers  FetcherSource
	Extractor llm.Extractor
	Cache     SignatureCache
	Notifier  notify.Notifier
	Logger    *log.Logger
}

type Options struct {
	Stages         []job.StageID
	MaxConcurrency int
	BatchSize      int
	MaxChars       int
	LockTTL        time.Duration
	Retry          RetryConfig
	// CompanyRPS paces how fast (company, stage) runs start. Zero means
	// unpaced.
	CompanyRPS     float64
}

func OptionsFrom(cfg config.Config) Options {
	return Options{
		Stages:         cfg.Pipeline.Stages,
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
		BatchSize:      cfg.Pipeline.BatchSize,
		MaxChars:       cfg.Fetch.MaxChars,
		LockTTL:        cfg.Redis.LockTTL,
		Retry:          RetryConfigFrom(cfg.Pipeline),
		CompanyRPS:     cfg.Pipeline.CompanyRPS,
	}
}

type Pipeline struct {
	deps   Deps
	opts   Options
	log    *log.Logger
	now    func() time.Time
	starts *rate.Limiter
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if len(opts.Stages) == 0 {
		opts.Stages = job.AllStages
	}
	var starts *rate.Limiter
	if opts.CompanyRPS > 0 {
		starts = rate.NewLimiter(rate.Limit(opts.CompanyRPS), 1)
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		log:    deps.Logger,
		now:    func() time.Time { return time.Now().UTC() },
		starts: starts,
	}
}

func (p *Pipeline) stageEnabled(stage job.StageID) bool {
	for _, s := range p.opts.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// Cleanup removes records inactive for longer than retention. Active records
// are never touched.
func (p *Pipeline) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := p.deps.Jobs.CleanupInactive(ctx, p.now().Add(-retention))
	if err != nil {
		p.log.Printf("pipeline=cleanup status=error err=%v", err)
		return 0, err
	}
	if n > 0 && p.deps.Cache != nil {
		if err := p.deps.Cache.InvalidateCompany(ctx, ""); err != nil {
			p.log.Printf("pipeline=cleanup status=warn cache_err=%v", err)
		}
	}
	p.log.Printf("pipeline=cleanup status=ok removed=%d retention=%s", n, retention)
	return n, nil
}
