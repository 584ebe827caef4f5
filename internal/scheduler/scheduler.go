// Package scheduler triggers pipeline passes on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron. Overlapping ticks are skipped while a pass is
// still running, including the immediate pass.
type Scheduler struct {
	cron     *cron.Cron
	chain    cron.Chain
	schedule cron.Schedule
	spec     string
	run      func(ctx context.Context)
	log      *log.Logger
	wg       sync.WaitGroup
}

func New(spec string, run func(ctx context.Context), logger *log.Logger) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if run == nil {
		return nil, fmt.Errorf("nil run func")
	}
	if logger == nil {
		logger = log.Default()
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	cl := cron.PrintfLogger(logger)
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl)),
		chain:    cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		schedule: schedule,
		spec:     spec,
		run:      run,
		log:      logger,
	}, nil
}

// Start registers the job and starts ticking. When immediate is set one pass
// runs right away so the store is populated without waiting for the first
// tick.
func (s *Scheduler) Start(ctx context.Context, immediate bool) error {
	// One wrapped job for ticks and the immediate pass so they share the
	// SkipIfStillRunning guard.
	job := s.chain.Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx)
	}))
	s.cron.Schedule(s.schedule, job)
	s.cron.Start()
	s.log.Printf("[Scheduler] cron started spec=%s", s.spec)

	if immediate {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job.Run()
		}()
	}
	return nil
}

// Stop waits for a running pass to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Printf("[Scheduler] cron stopped")
}

func (s *Scheduler) Next() string {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return ""
	}
	return entries[0].Next.UTC().Format("2006-01-02T15:04:05Z")
}
