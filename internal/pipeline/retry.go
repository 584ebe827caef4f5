package pipeline

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"job-pipeline/internal/config"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/fetcher"
	"job-pipeline/internal/infrastructure/llm"
)

type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries:  3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Multiplier:  2.0,
}

func RetryConfigFrom(cfg config.PipelineConfig) RetryConfig {
	rc := DefaultRetryConfig
	rc.MaxRetries = cfg.RetryMax
	if cfg.RetryInitialWait > 0 {
		rc.InitialWait = cfg.RetryInitialWait
	}
	if cfg.RetryMaxWait > 0 {
		rc.MaxWait = cfg.RetryMaxWait
	}
	return rc
}

// RetryDo retries fn with exponential backoff while the error is transient.
func RetryDo[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	multiplier := rc.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}

		if attempt < rc.MaxRetries {
			wait := time.Duration(float64(rc.InitialWait) * math.Pow(multiplier, float64(attempt)))
			if rc.MaxWait > 0 && wait > rc.MaxWait {
				wait = rc.MaxWait
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}
	}
	return zero, lastErr
}

// IsRetryable reports transient failures. Validation errors and missing
// records are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || job.IsValidation(err) || errors.Is(err, job.ErrNotFound) {
		return false
	}
	if errors.Is(err, job.ErrPersistenceConflict) {
		return true
	}

	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Temporary()
	}
	if llm.IsTemporary(err) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
