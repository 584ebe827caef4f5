package usecase

import (
	"context"
	"time"
)

// ResponseCache is the read-through cache in front of listing queries.
type ResponseCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}
