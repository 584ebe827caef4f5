package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"job-pipeline/internal/company"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/fetcher"
)

// discover runs stage 1 for one company: career page to candidates, then
// dedup against known signatures, activity sync and persistence of the new
// records.
func (p *Pipeline) discover(ctx context.Context, s runScope, c company.Company) (stageCounts, error) {
	var counts stageCounts

	f, err := p.deps.Fetchers.For(c.WebParser.Type)
	if err != nil {
		return counts, err
	}
	html, err := RetryDo(ctx, p.opts.Retry, func() (string, error) {
		return f.FetchHTML(ctx, c.CareerURL, c.WebParser.JobBoardSelectors)
	})
	if err != nil {
		return counts, fmt.Errorf("fetch career page: %w", err)
	}

	req, err := buildRequest(job.StageDiscovery, promptData{
		Company:   c.Name,
		CareerURL: c.CareerURL,
		Content:   fetcher.ToMarkdown(html, p.opts.MaxChars),
	})
	if err != nil {
		return counts, err
	}
	raw, err := RetryDo(ctx, p.opts.Retry, func() ([]byte, error) {
		return p.deps.Extractor.ExtractJSON(ctx, req)
	})
	if err != nil {
		return counts, fmt.Errorf("extract listings: %w", err)
	}

	var resp discoveryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return counts, fmt.Errorf("decode listings: %w", err)
	}
	candidates := p.candidatesFrom(s, c, resp.Jobs)
	s.logf("info", "status=found candidates=%d", len(candidates))

	known, err := p.knownSignatures(ctx, c.Name)
	if err != nil {
		return counts, fmt.Errorf("known signatures: %w", err)
	}
	parts := job.Partition(candidates, known)
	for _, col := range parts.Collisions {
		s.logf("error", "status=collision err=%v", col)
	}
	if n := len(parts.Duplicate); n > 0 {
		s.logf("info", "status=filtered duplicates=%d new=%d", n, len(parts.New))
	}

	// An empty pass is more likely a broken page than a company with no
	// openings, so activity is left as is.
	if len(candidates) > 0 {
		res, err := p.deps.Jobs.SyncActive(ctx, c.Name, seenSignatures(parts))
		if err != nil {
			return counts, fmt.Errorf("sync active: %w", err)
		}
		counts.deactivated, counts.reactivated = int(res.Deactivated), int(res.Reactivated)
		if res.Deactivated > 0 || res.Reactivated > 0 {
			s.logf("info", "status=synced deactivated=%d reactivated=%d", res.Deactivated, res.Reactivated)
			if p.deps.Cache != nil {
				_ = p.deps.Cache.InvalidateListings(ctx)
			}
		}
	}

	counts.processed = len(parts.New)
	saved := make([]string, 0, len(parts.New))
	discoveredAt := p.now()
	for _, cand := range parts.New {
		update := cand.Update()
		update.DiscoveredAt = discoveredAt
		_, err := RetryDo(ctx, p.opts.Retry, func() (job.Record, error) {
			return p.deps.Jobs.Apply(ctx, cand.Signature, update)
		})
		if err != nil {
			counts.failed++
			s.logf("error", "status=error signature=%s url=%s err=%v", cand.Signature, cand.URL, err)
			continue
		}
		counts.completed++
		saved = append(saved, cand.Signature)
	}

	if p.deps.Cache != nil && len(saved) > 0 {
		if err := p.deps.Cache.AddKnownSignatures(ctx, c.Name, saved...); err != nil {
			s.logf("warn", "status=warn cache_err=%v", err)
		}
	}
	return counts, ctx.Err()
}

func (p *Pipeline) candidatesFrom(s runScope, c company.Company, listings []discoveredListing) []job.Candidate {
	out := make([]job.Candidate, 0, len(listings))
	for _, l := range listings {
		title := strings.Join(strings.Fields(l.Title), " ")
		link, err := resolveURL(c.CareerURL, l.URL)
		if title == "" || err != nil {
			s.logf("warn", "status=skipped title=%q url=%q err=%v", l.Title, l.URL, err)
			continue
		}
		out = append(out, job.Candidate{Title: title, URL: link, Company: c.Name})
	}
	return out
}

// knownSignatures prefers the cached set and fills it from the repository on
// a miss.
func (p *Pipeline) knownSignatures(ctx context.Context, companyName string) (map[string]struct{}, error) {
	if p.deps.Cache != nil {
		sigs, found, err := p.deps.Cache.KnownSignatures(ctx, companyName)
		if err == nil && found {
			return sigs, nil
		}
	}
	sigs, err := p.deps.Jobs.ListKnownSignatures(ctx, companyName)
	if err != nil {
		return nil, err
	}
	if p.deps.Cache != nil {
		list := make([]string, 0, len(sigs))
		for s := range sigs {
			list = append(list, s)
		}
		if err := p.deps.Cache.AddKnownSignatures(ctx, companyName, list...); err != nil {
			p.log.Printf("pipeline=stage_1 company=%s status=warn cache_err=%v", companyName, err)
		}
	}
	return sigs, nil
}

func seenSignatures(parts job.Partitioned) []string {
	out := parts.Signatures()
	for _, d := range parts.Duplicate {
		if d.Reason == job.DuplicateKnown {
			out = append(out, d.Signature)
		}
	}
	return out
}

// resolveURL makes listing links absolute against the career page.
func resolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty url")
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	u := b.ResolveReference(r)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
