package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"job-pipeline/internal/app"
	"job-pipeline/internal/company"
	"job-pipeline/internal/config"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/pipeline"
	"job-pipeline/internal/scheduler"
)

func main() {
	stageFlag := flag.String("stage", "", "run a single stage (stage_1..stage_4); default runs every enabled stage")
	companyFlag := flag.String("company", "", "limit the run to one company from the catalog")
	schedule := flag.String("schedule", "", "cron spec; when set the worker keeps running (overrides PIPELINE_SCHEDULE)")
	cleanupOnly := flag.Bool("cleanup", false, "purge records inactive longer than PIPELINE_RETENTION_DAYS (must be > 0) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags|log.LUTC)

	c, err := app.NewContainer(cfg, logger)
	if err != nil {
		log.Fatalf("failed to init container: %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Printf("close error: %v", err)
		}
	}()

	migCtx, migCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := c.Migrate(migCtx); err != nil {
		migCancel()
		log.Fatalf("migration failed: %v", err)
	}
	migCancel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := c.Pipeline()
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	if *cleanupOnly {
		if cfg.Pipeline.RetentionDays <= 0 {
			log.Fatalf("-cleanup requires PIPELINE_RETENTION_DAYS > 0")
		}
		retention := time.Duration(cfg.Pipeline.RetentionDays) * 24 * time.Hour
		if _, err := p.Cleanup(ctx, retention); err != nil {
			log.Fatalf("cleanup failed: %v", err)
		}
		return
	}

	catalog, err := company.LoadCatalog(cfg.Pipeline.CompaniesFile)
	if err != nil {
		log.Fatalf("failed to load companies: %v", err)
	}
	companies := company.Select(catalog, *companyFlag)
	if len(companies) == 0 {
		log.Fatalf("no enabled company matches %q", *companyFlag)
	}

	var stage job.StageID
	if s := strings.TrimSpace(*stageFlag); s != "" {
		if stage, err = job.ParseStage(s); err != nil {
			log.Fatalf("invalid -stage: %v", err)
		}
	}

	pass := func(ctx context.Context) {
		var outcomes []pipeline.StageOutcome
		if stage != 0 {
			outcomes = p.RunStage(ctx, stage, companies)
		} else {
			outcomes = p.Run(ctx, companies)
		}
		for _, o := range outcomes {
			logger.Printf("summary stage=%s company=%s status=%s processed=%d completed=%d failed=%d duration=%s",
				o.Stage.Tag(), o.Company, o.Status, o.Processed, o.Completed, o.Failed, o.Duration)
		}
	}

	spec := strings.TrimSpace(*schedule)
	if spec == "" {
		spec = cfg.Pipeline.Schedule
	}
	if spec == "" {
		pass(ctx)
		return
	}

	s, err := scheduler.New(spec, pass, logger)
	if err != nil {
		log.Fatalf("invalid schedule: %v", err)
	}
	if err := s.Start(ctx, true); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	logger.Printf("[Scheduler] next run at %s", s.Next())
	<-ctx.Done()
	s.Stop()
}
