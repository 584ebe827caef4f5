package usecase

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/cache"
	"job-pipeline/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type ActivityFilter string

const (
	ActivityActive   ActivityFilter = "active"
	ActivityInactive ActivityFilter = "inactive"
	ActivityAll      ActivityFilter = "all"
)

type JobListParams struct {
	Company         string
	WorkMode        string
	ExperienceLevel string
	Technology      string
	Status          ActivityFilter
	Limit           int
	Offset          int
}

type JobListPage struct {
	Items  []job.Record `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type JobListUsecase interface {
	ListJobs(ctx context.Context, params JobListParams) (JobListPage, error)
	GetJob(ctx context.Context, signature string) (job.Record, error)
}

type JobList struct {
	jobs   repository.JobListingRepository
	cache  ResponseCache
	logger *log.Logger
}

func NewJobListUsecase(jobs repository.JobListingRepository, cache ResponseCache, logger *log.Logger) *JobList {
	if logger == nil {
		logger = log.Default()
	}
	return &JobList{jobs: jobs, cache: cache, logger: logger}
}

func (u *JobList) ListJobs(ctx context.Context, params JobListParams) (JobListPage, error) {
	filter, err := listFilterFrom(&params)
	if err != nil {
		return JobListPage{}, err
	}

	key := cache.JobListKey(params.Company, params.WorkMode, params.ExperienceLevel, params.Technology,
		string(params.Status), strconv.Itoa(params.Limit), strconv.Itoa(params.Offset))
	var page JobListPage
	if u.cacheGet(ctx, key, &page) {
		return page, nil
	}

	items, total, err := u.jobs.List(ctx, filter)
	if err != nil {
		u.logger.Printf("[Jobs] list error err=%v", err)
		return JobListPage{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if items == nil {
		items = []job.Record{}
	}
	page = JobListPage{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset}
	u.cacheSet(ctx, key, page)
	return page, nil
}

func (u *JobList) GetJob(ctx context.Context, signature string) (job.Record, error) {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if !validSignature(signature) {
		return job.Record{}, ErrInvalidInput
	}

	key := cache.JobDetailKey(signature)
	var rec job.Record
	if u.cacheGet(ctx, key, &rec) {
		return rec, nil
	}

	got, err := u.jobs.GetBySignature(ctx, signature)
	if err != nil {
		u.logger.Printf("[Jobs] get error signature=%s err=%v", signature, err)
		return job.Record{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if got == nil {
		return job.Record{}, ErrNotFound
	}
	u.cacheSet(ctx, key, got)
	return *got, nil
}

func (u *JobList) cacheGet(ctx context.Context, key string, out any) bool {
	if u.cache == nil {
		return false
	}
	hit, err := u.cache.GetJSON(ctx, key, out)
	if err != nil || !hit {
		u.logger.Printf("[Jobs] Cache MISS: %s", key)
		return false
	}
	u.logger.Printf("[Jobs] Cache HIT: %s", key)
	return true
}

func (u *JobList) cacheSet(ctx context.Context, key string, value any) {
	if u.cache == nil {
		return
	}
	if err := u.cache.SetJSON(ctx, key, value, 0); err != nil {
		u.logger.Printf("[Jobs] Cache SET error key=%s err=%v", key, err)
	}
}

// listFilterFrom validates params in place, filling defaults.
func listFilterFrom(p *JobListParams) (repository.ListFilter, error) {
	if p.Limit == 0 {
		p.Limit = defaultListLimit
	}
	if p.Limit < 0 || p.Limit > maxListLimit || p.Offset < 0 {
		return repository.ListFilter{}, ErrInvalidInput
	}
	p.Company = strings.TrimSpace(p.Company)
	p.WorkMode = strings.TrimSpace(p.WorkMode)
	p.ExperienceLevel = strings.TrimSpace(p.ExperienceLevel)
	p.Technology = strings.TrimSpace(p.Technology)

	if p.WorkMode != "" && !job.WorkMode(p.WorkMode).Valid() {
		return repository.ListFilter{}, fmt.Errorf("%w: work_mode %q", ErrInvalidInput, p.WorkMode)
	}
	if p.ExperienceLevel != "" && !job.ExperienceLevel(p.ExperienceLevel).Valid() {
		return repository.ListFilter{}, fmt.Errorf("%w: experience_level %q", ErrInvalidInput, p.ExperienceLevel)
	}

	f := repository.ListFilter{
		Company:         p.Company,
		WorkMode:        p.WorkMode,
		ExperienceLevel: p.ExperienceLevel,
		Technology:      p.Technology,
		Limit:           p.Limit,
		Offset:          p.Offset,
	}
	switch p.Status {
	case "", ActivityActive:
		p.Status = ActivityActive
		active := true
		f.Active = &active
	case ActivityInactive:
		inactive := false
		f.Active = &inactive
	case ActivityAll:
	default:
		return repository.ListFilter{}, fmt.Errorf("%w: status %q", ErrInvalidInput, p.Status)
	}
	return f, nil
}

func validSignature(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
