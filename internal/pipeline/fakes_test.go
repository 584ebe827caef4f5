package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"job-pipeline/internal/company"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/fetcher"
	"job-pipeline/internal/infrastructure/llm"
	"job-pipeline/internal/infrastructure/notify"
	"job-pipeline/internal/repository"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type memRepo struct {
	mu      sync.Mutex
	records map[string]job.Record
	applies int
}

func newMemRepo() *memRepo { return &memRepo{records: map[string]job.Record{}} }

func (r *memRepo) GetBySignature(ctx context.Context, signature string) (*job.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[signature]
	if !ok {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

func (r *memRepo) Upsert(ctx context.Context, rec job.Record) (job.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig := job.Signature(rec.URL, rec.Title, rec.Company)
	var existing *job.Record
	if cur, ok := r.records[sig]; ok {
		existing = &cur
	}
	rec.Signature = sig
	merged, err := job.MergeRecords(existing, rec, testNow)
	if err != nil {
		return job.Record{}, err
	}
	r.records[sig] = merged
	return merged, nil
}

func (r *memRepo) Apply(ctx context.Context, signature string, update job.StageUpdate) (job.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applies++
	var existing *job.Record
	if cur, ok := r.records[signature]; ok {
		existing = &cur
	} else if update.Stage() != job.StageDiscovery {
		return job.Record{}, job.ErrNotFound
	}
	merged, err := job.Merge(existing, update, update.Stage(), testNow)
	if err != nil {
		return job.Record{}, err
	}
	r.records[signature] = merged
	return merged, nil
}

func (r *memRepo) FindIncomplete(ctx context.Context, stage job.StageID, filter repository.IncompleteFilter) ([]job.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []job.Record
	for _, rec := range r.records {
		if !rec.Active || rec.IsStageComplete(stage) {
			continue
		}
		if filter.Company != "" && rec.Company != filter.Company {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature < out[j].Signature })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memRepo) ListKnownSignatures(ctx context.Context, company string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]struct{}{}
	for sig, rec := range r.records {
		if rec.Company == company {
			out[sig] = struct{}{}
		}
	}
	return out, nil
}

func (r *memRepo) SyncActive(ctx context.Context, company string, seen []string) (repository.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := map[string]bool{}
	for _, s := range seen {
		set[s] = true
	}
	var res repository.SyncResult
	for sig, rec := range r.records {
		if rec.Company != company {
			continue
		}
		switch {
		case rec.Active && !set[sig]:
			rec.Active = false
			res.Deactivated++
		case !rec.Active && set[sig]:
			rec.Active = true
			res.Reactivated++
		default:
			continue
		}
		r.records[sig] = rec
	}
	return res, nil
}

func (r *memRepo) List(ctx context.Context, filter repository.ListFilter) ([]job.Record, int, error) {
	return nil, 0, errors.New("not used")
}

func (r *memRepo) CountByStage(ctx context.Context, company string) (repository.StageCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c repository.StageCounts
	for _, rec := range r.records {
		if company != "" && rec.Company != company {
			continue
		}
		if rec.Active {
			c.Active++
		} else {
			c.Inactive++
		}
	}
	return c, nil
}

func (r *memRepo) CleanupInactive(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for sig, rec := range r.records {
		if !rec.Active && rec.UpdatedAt.Before(before) {
			delete(r.records, sig)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) get(sig string) job.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[sig]
}

type memRuns struct {
	mu       sync.Mutex
	started  map[uuid.UUID]string
	finished map[uuid.UUID]repository.StageRunResult
	logs     []string
}

func newMemRuns() *memRuns {
	return &memRuns{started: map[uuid.UUID]string{}, finished: map[uuid.UUID]repository.StageRunResult{}}
}

func (r *memRuns) Start(ctx context.Context, company string, stage job.StageID) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.started[id] = company + "/" + stage.Tag()
	return id, nil
}

func (r *memRuns) Finish(ctx context.Context, runID uuid.UUID, res repository.StageRunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[runID] = res
	return nil
}

func (r *memRuns) Log(ctx context.Context, runID uuid.UUID, level, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, level+": "+message)
	return nil
}

func (r *memRuns) Latest(ctx context.Context, limit int) ([]repository.StageRun, error) {
	return nil, nil
}

type memMetrics struct {
	mu     sync.Mutex
	deltas []repository.DailyMetricsDelta
}

func (m *memMetrics) Record(ctx context.Context, d repository.DailyMetricsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas = append(m.deltas, d)
	return nil
}

func (m *memMetrics) Aggregates(ctx context.Context, from, to time.Time, company string) ([]repository.DailyAggregate, error) {
	return nil, errors.New("not used")
}

type stubFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	err    error
	called []string
}

func (f *stubFetcher) FetchHTML(ctx context.Context, pageURL string, selectors []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, pageURL)
	if f.err != nil {
		return "", f.err
	}
	if html, ok := f.pages[pageURL]; ok {
		return html, nil
	}
	return "<p>posting</p>", nil
}

type stubExtractor struct {
	mu      sync.Mutex
	respond func(req llm.Request) ([]byte, error)
	calls   int
}

func (e *stubExtractor) ExtractJSON(ctx context.Context, req llm.Request) ([]byte, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.respond(req)
}

type memCache struct {
	mu          sync.Mutex
	sigs        map[string]map[string]struct{}
	locked      map[string]bool
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{sigs: map[string]map[string]struct{}{}, locked: map[string]bool{}}
}

func (c *memCache) KnownSignatures(ctx context.Context, company string) (map[string]struct{}, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sigs[company]
	if !ok {
		return nil, false, nil
	}
	out := map[string]struct{}{}
	for k := range s {
		out[k] = struct{}{}
	}
	return out, true, nil
}

func (c *memCache) AddKnownSignatures(ctx context.Context, company string, signatures ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sigs[company] == nil {
		c.sigs[company] = map[string]struct{}{}
	}
	for _, s := range signatures {
		c.sigs[company][s] = struct{}{}
	}
	return nil
}

func (c *memCache) InvalidateListings(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	return nil
}

func (c *memCache) InvalidateCompany(ctx context.Context, company string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	if company == "" {
		c.sigs = map[string]map[string]struct{}{}
	} else {
		delete(c.sigs, company)
	}
	return nil
}

func (c *memCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked[key] {
		return "", false, nil
	}
	c.locked[key] = true
	return "token", true, nil
}

func (c *memCache) ReleaseLock(ctx context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locked, key)
	return nil
}

type memNotifier struct {
	mu   sync.Mutex
	sent []notify.Completion
}

func (n *memNotifier) StageCompleted(ctx context.Context, c notify.Completion) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return nil
}

type harness struct {
	repo     *memRepo
	runs     *memRuns
	metrics  *memMetrics
	fetch    *stubFetcher
	extract  *stubExtractor
	cache    *memCache
	notifier *memNotifier
	p        *Pipeline
}

func newHarness(respond func(req llm.Request) ([]byte, error)) *harness {
	h := &harness{
		repo:     newMemRepo(),
		runs:     newMemRuns(),
		metrics:  &memMetrics{},
		fetch:    &stubFetcher{pages: map[string]string{}},
		extract:  &stubExtractor{respond: respond},
		cache:    newMemCache(),
		notifier: &memNotifier{},
	}
	h.p = New(Deps{
		Jobs:      h.repo,
		Runs:      h.runs,
		Metrics:   h.metrics,
		Fetchers:  fetcher.NewStaticRegistry(map[company.ParserType]fetcher.Fetcher{company.ParserDefault: h.fetch}),
		Extractor: h.extract,
		Cache:     h.cache,
		Notifier:  h.notifier,
		Logger:    log.New(io.Discard, "", 0),
	}, Options{
		MaxConcurrency: 2,
		BatchSize:      10,
		Retry:          RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 2},
	})
	h.p.now = func() time.Time { return testNow }
	return h
}

func acme() company.Company {
	return company.Company{
		Name:      "Acme",
		CareerURL: "https://careers.acme.com/jobs",
		WebParser: company.WebParser{Type: company.ParserDefault, JobBoardSelectors: []string{".openings"}},
	}
}

func promptHas(req llm.Request, s string) bool {
	return strings.Contains(req.Prompt, s)
}
