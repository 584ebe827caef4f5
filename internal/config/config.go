package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"job-pipeline/internal/domain/job"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Fetch    FetchConfig
	Pipeline PipelineConfig
}

type AppConfig struct {
	AppName       string
	Environment   string
	HTTPPort      string
	InternalToken string
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout        time.Duration
	PoolMaxConns          int32
	PoolMinConns          int32
	PoolMaxConnLifetime   time.Duration
	PoolMaxConnIdleTime   time.Duration
	PoolHealthCheckPeriod time.Duration
}

type RedisConfig struct {
	URL          string
	TTL          time.Duration
	SignatureTTL time.Duration
	LockTTL      time.Duration
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float32
}

type FetchConfig struct {
	Timeout           time.Duration
	MaxChars          int
	RequestsPerSecond float64
	UserAgent         string
	HeadlessWait      time.Duration
}

type PipelineConfig struct {
	CompaniesFile    string
	Stages           []job.StageID
	MaxConcurrency   int
	CompanyRPS       float64
	BatchSize        int
	RetryMax         int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration
	RetentionDays    int
	Schedule         string
	NotifyURL        string
}

func (p PipelineConfig) StageEnabled(stage job.StageID) bool {
	for _, s := range p.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

var (
	errMissingRequiredEnv = errors.New("missing required environment variables")
	errInvalidEnv         = errors.New("invalid environment variables")
)

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}

	var missing, invalid []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}
	optDefault := func(key, def string) string {
		if v := opt(key); v != "" {
			return v
		}
		return def
	}
	optInt := func(key string, def int) int {
		v := opt(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			invalid = append(invalid, key)
			return def
		}
		return n
	}
	optFloat := func(key string, def float64) float64 {
		v := opt(key)
		if v == "" {
			return def
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			invalid = append(invalid, key)
			return def
		}
		return f
	}
	optDuration := func(key string, def time.Duration) time.Duration {
		v := opt(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			invalid = append(invalid, key)
			return def
		}
		return d
	}

	cfg.App = AppConfig{
		AppName:       req("APP_NAME"),
		Environment:   req("APP_ENV"),
		HTTPPort:      optDefault("HTTP_PORT", "8080"),
		InternalToken: opt("INTERNAL_TOKEN"),
	}

	cfg.Database = DatabaseConfig{
		DBHost:     req("DB_HOST"),
		DBPort:     optDefault("DB_PORT", "5432"),
		DBName:     req("DB_NAME"),
		DBUser:     req("DB_USER"),
		DBPassword: opt("DB_PASSWORD"),
		DBSSLMode:  optDefault("DB_SSL_MODE", "disable"),

		ConnectTimeout:        optDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
		PoolMaxConns:          int32(optInt("DB_POOL_MAX_CONNS", 0)),
		PoolMinConns:          int32(optInt("DB_POOL_MIN_CONNS", 0)),
		PoolMaxConnLifetime:   optDuration("DB_POOL_MAX_CONN_LIFETIME", 0),
		PoolMaxConnIdleTime:   optDuration("DB_POOL_MAX_CONN_IDLE_TIME", 0),
		PoolHealthCheckPeriod: optDuration("DB_POOL_HEALTH_CHECK_PERIOD", 0),
	}

	cfg.Redis = RedisConfig{
		URL:          opt("REDIS_URL"),
		TTL:          optDuration("REDIS_TTL", 60*time.Second),
		SignatureTTL: optDuration("REDIS_SIGNATURE_TTL", 6*time.Hour),
		LockTTL:      optDuration("REDIS_LOCK_TTL", 30*time.Minute),
	}

	cfg.LLM = LLMConfig{
		APIKey:      opt("LLM_API_KEY"),
		BaseURL:     opt("LLM_BASE_URL"),
		Model:       optDefault("LLM_MODEL", "gpt-4o-mini"),
		Timeout:     optDuration("LLM_TIMEOUT", 60*time.Second),
		Temperature: float32(optFloat("LLM_TEMPERATURE", 0)),
	}

	cfg.Fetch = FetchConfig{
		Timeout:           optDuration("FETCH_TIMEOUT", 30*time.Second),
		MaxChars:          optInt("FETCH_MAX_CHARS", 60000),
		RequestsPerSecond: optFloat("FETCH_RPS", 2),
		UserAgent:         optDefault("FETCH_USER_AGENT", "Mozilla/5.0 (compatible; job-pipeline/1.0)"),
		HeadlessWait:      optDuration("FETCH_HEADLESS_WAIT", 3*time.Second),
	}

	stages, err := parseStages(optDefault("PIPELINE_STAGES", "stage_1,stage_2,stage_3,stage_4"))
	if err != nil {
		invalid = append(invalid, "PIPELINE_STAGES")
	}
	cfg.Pipeline = PipelineConfig{
		CompaniesFile:    optDefault("COMPANIES_FILE", "configs/companies.yaml"),
		Stages:           stages,
		MaxConcurrency:   optInt("PIPELINE_MAX_CONCURRENCY", 4),
		CompanyRPS:       optFloat("PIPELINE_RPS", 0),
		BatchSize:        optInt("PIPELINE_BATCH_SIZE", 50),
		RetryMax:         optInt("PIPELINE_RETRY_MAX", 3),
		RetryInitialWait: optDuration("PIPELINE_RETRY_INITIAL_WAIT", 500*time.Millisecond),
		RetryMaxWait:     optDuration("PIPELINE_RETRY_MAX_WAIT", 10*time.Second),
		RetentionDays:    optInt("PIPELINE_RETENTION_DAYS", 0),
		Schedule:         opt("PIPELINE_SCHEDULE"),
		NotifyURL:        opt("PIPELINE_NOTIFY_URL"),
	}
	if cfg.Pipeline.MaxConcurrency == 0 {
		cfg.Pipeline.MaxConcurrency = 1
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errInvalidEnv, strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func parseStages(raw string) ([]job.StageID, error) {
	var out []job.StageID
	seen := map[job.StageID]bool{}
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := job.ParseStage(part)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}
