package pipeline

import (
	"context"
	"fmt"

	"job-pipeline/internal/company"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/fetcher"
	"job-pipeline/internal/repository"
)

// enrich runs one of stages 2 to 4 over the company's active records that
// have not completed it. A record failing here is logged and left as is.
func (p *Pipeline) enrich(ctx context.Context, s runScope, c company.Company) (stageCounts, error) {
	var counts stageCounts

	pending, err := p.deps.Jobs.FindIncomplete(ctx, s.stage, repository.IncompleteFilter{
		Company: c.Name,
		Limit:   p.opts.BatchSize,
	})
	if err != nil {
		return counts, fmt.Errorf("find incomplete: %w", err)
	}
	if len(pending) == 0 {
		return counts, nil
	}

	f, err := p.deps.Fetchers.For(c.WebParser.Type)
	if err != nil {
		return counts, err
	}

	for _, rec := range pending {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}
		counts.processed++
		if err := p.enrichRecord(ctx, s, f, c, rec); err != nil {
			counts.failed++
			s.logf("error", "status=error signature=%s url=%s err=%v", rec.Signature, rec.URL, err)
			continue
		}
		counts.completed++
	}
	return counts, nil
}

func (p *Pipeline) enrichRecord(ctx context.Context, s runScope, f fetcher.Fetcher, c company.Company, rec job.Record) error {
	html, err := RetryDo(ctx, p.opts.Retry, func() (string, error) {
		return f.FetchHTML(ctx, rec.URL, c.WebParser.JobCardSelectors)
	})
	if err != nil {
		return fmt.Errorf("fetch posting: %w", err)
	}

	req, err := buildRequest(s.stage, promptData{
		Company: rec.Company,
		Title:   rec.Title,
		URL:     rec.URL,
		Content: fetcher.ToMarkdown(html, p.opts.MaxChars),
	})
	if err != nil {
		return err
	}
	raw, err := RetryDo(ctx, p.opts.Retry, func() ([]byte, error) {
		return p.deps.Extractor.ExtractJSON(ctx, req)
	})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	update, err := job.DecodeStageUpdate(s.stage, raw)
	if err != nil {
		return err
	}
	merged, err := RetryDo(ctx, p.opts.Retry, func() (job.Record, error) {
		return p.deps.Jobs.Apply(ctx, rec.Signature, update)
	})
	if err != nil {
		return err
	}
	if !merged.IsStageComplete(s.stage) {
		return fmt.Errorf("%s still incomplete after merge", s.stage.Tag())
	}
	s.logf("info", "status=ok signature=%s", rec.Signature)
	return nil
}
