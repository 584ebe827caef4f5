package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"job-pipeline/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis is an optional accelerator. Every method degrades to a no-op (or a
// miss) when the server is unreachable so the pipeline keeps running off
// Postgres alone.
type Redis struct {
	client *redis.Client
	logger *log.Logger
	cfg    config.RedisConfig

	warnedUnavailable atomic.Bool
}

func NewRedis(cfg config.RedisConfig, logger *log.Logger) *Redis {
	if logger == nil {
		logger = log.Default()
	}
	out := &Redis{logger: logger, cfg: cfg}

	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		logger.Printf("[Cache] REDIS_URL not set, bypassing cache")
		return out
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		logger.Printf("[Cache] invalid REDIS_URL, bypassing cache: %v", err)
		return out
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Printf("[Cache] Redis unavailable, bypassing cache: %v", err)
		_ = client.Close()
		return out
	}

	out.client = client
	return out
}

func (r *Redis) isUnavailable() bool {
	return r == nil || r.client == nil
}

func (r *Redis) warnUnavailableOnce(err error) {
	if r == nil || r.logger == nil {
		return
	}
	if r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.Printf("[Cache] Redis unavailable, bypassing cache: %v", err)
	}
}

func (r *Redis) Close() error {
	if r.isUnavailable() {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) Ping(ctx context.Context) error {
	if r.isUnavailable() {
		return errors.New("redis unavailable")
	}
	return r.client.Ping(ctx).Err()
}

func (r *Redis) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	if r.isUnavailable() {
		return false, nil
	}
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		r.warnUnavailableOnce(err)
		return false, err
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if r.isUnavailable() {
		return nil
	}
	if ttl <= 0 {
		ttl = r.defaultTTL()
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, b, ttl).Err(); err != nil {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if r.isUnavailable() || len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}

func (r *Redis) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.isUnavailable() {
		return nil
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if err := r.client.Del(ctx, k).Err(); err != nil {
			r.logger.Printf("[Cache] Redis delete error key=%s pattern=%s err=%v", k, pattern, err)
		}
	}
	return iter.Err()
}

// InvalidateListings drops cached API responses.
func (r *Redis) InvalidateListings(ctx context.Context) error {
	if r.isUnavailable() {
		return nil
	}
	var firstErr error
	for _, err := range []error{
		r.DeleteByPattern(ctx, JobListPattern),
		r.DeleteByPattern(ctx, JobDetailPattern),
		r.Delete(ctx, StatusKey),
	} {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InvalidateCompany also drops the known-signature set of one company. An
// empty company clears every set.
func (r *Redis) InvalidateCompany(ctx context.Context, company string) error {
	if r.isUnavailable() {
		return nil
	}
	err := r.InvalidateListings(ctx)
	company = strings.TrimSpace(company)

	var sigErr error
	if company == "" {
		sigErr = r.DeleteByPattern(ctx, signaturesPrefix+"*")
	} else {
		sigErr = r.Delete(ctx, SignaturesKey(company))
	}
	if err != nil {
		return err
	}
	return sigErr
}

// KnownSignatures returns the cached signature set of a company. found is
// false on a miss, in which case the caller falls back to the repository.
func (r *Redis) KnownSignatures(ctx context.Context, company string) (map[string]struct{}, bool, error) {
	if r.isUnavailable() {
		return nil, false, nil
	}
	key := SignaturesKey(company)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.warnUnavailableOnce(err)
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		r.warnUnavailableOnce(err)
		return nil, false, err
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m == signatureSentinel {
			continue
		}
		out[m] = struct{}{}
	}
	return out, true, nil
}

// AddKnownSignatures extends the cached set and refreshes its expiry. A
// sentinel member keeps an empty set distinguishable from a miss.
func (r *Redis) AddKnownSignatures(ctx context.Context, company string, signatures ...string) error {
	if r.isUnavailable() {
		return nil
	}
	key := SignaturesKey(company)
	members := make([]any, 0, len(signatures)+1)
	members = append(members, signatureSentinel)
	for _, s := range signatures {
		members = append(members, s)
	}

	ttl := r.cfg.SignatureTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// AcquireLock takes a best-effort lock. Without redis every caller gets the
// lock; the repository row locks still keep writes consistent.
func (r *Redis) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if r.isUnavailable() {
		return "", true, nil
	}
	if ttl <= 0 {
		ttl = r.cfg.LockTTL
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		r.warnUnavailableOnce(err)
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseLock deletes the lock only while it is still held by token.
func (r *Redis) ReleaseLock(ctx context.Context, key, token string) error {
	if r.isUnavailable() || token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}

func (r *Redis) defaultTTL() time.Duration {
	if r.cfg.TTL > 0 {
		return r.cfg.TTL
	}
	return 60 * time.Second
}
