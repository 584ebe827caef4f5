package app

import (
	"context"
	"database/sql"
	"io"
	"log"
	"net/http/httptest"
	"testing"

	"job-pipeline/internal/config"
	"job-pipeline/internal/database"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/cache"
	"job-pipeline/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingDB struct{ database.DB }

func (pingDB) Ping(ctx context.Context) error { return nil }
func (pingDB) SQLDB() *sql.DB                 { return nil }

type emptyJobs struct{ repository.JobListingRepository }

func (emptyJobs) List(ctx context.Context, f repository.ListFilter) ([]job.Record, int, error) {
	return nil, 0, nil
}

func testContainer() *Container {
	logger := log.New(io.Discard, "", 0)
	return &Container{
		Logger: logger,
		DB:     pingDB{},
		Cache:  cache.NewRedis(config.RedisConfig{}, logger),
		Jobs:   emptyJobs{},
	}
}

func TestNew_RegistersRoutes(t *testing.T) {
	a := New(config.Config{App: config.AppConfig{AppName: "job-pipeline", InternalToken: "t"}}, testContainer())

	cases := []struct {
		method, path string
		status       int
	}{
		{"GET", "/health", 200},
		{"GET", "/api/v1/jobs", 200},
		{"GET", "/api/v1/jobs/not-a-signature", 400},
		{"POST", "/api/v1/internal/pipeline/completed", 401},
		{"GET", "/nope", 404},
	}
	for _, tc := range cases {
		resp, err := a.Fiber.Test(httptest.NewRequest(tc.method, tc.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestMigrate_RequiresSQLHandle(t *testing.T) {
	assert.Error(t, testContainer().Migrate(context.Background()))
}

func TestListenAddr(t *testing.T) {
	addr, err := ListenAddr("8080")
	require.NoError(t, err)
	assert.Equal(t, ":8080", addr)
	addr, err = ListenAddr(":9000")
	require.NoError(t, err)
	assert.Equal(t, ":9000", addr)
	_, err = ListenAddr(" ")
	assert.Error(t, err)
}
