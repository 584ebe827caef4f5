package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"job-pipeline/internal/config"
	"job-pipeline/internal/delivery/http/handler"
	"job-pipeline/internal/delivery/http/middleware"
	"job-pipeline/internal/delivery/http/routes"
	"job-pipeline/internal/usecase"
	"job-pipeline/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber *fiber.App
	Hub   *ws.Hub
}

// New builds the HTTP app over an existing container. The hub is not
// started; Bootstrap does that.
func New(cfg config.Config, c *Container) *App {
	f := fiber.New(fiber.Config{AppName: cfg.App.AppName})
	hub := ws.NewHub(c.Logger)

	registerGlobalMiddleware(f, c.Logger)

	jobsUC := usecase.NewJobListUsecase(c.Jobs, c.Cache, c.Logger)
	statusUC := usecase.NewPipelineStatusUsecase(c.Jobs, c.Runs, c.Metrics, c.DB, c.Cache, c.Cache, c.Logger)

	routes.NewRegistry(routes.Handlers{
		Health:            handler.NewHealthHandler(c.DB, c.Cache),
		Jobs:              handler.NewJobsHandler(jobsUC),
		PipelineStatus:    handler.NewPipelineStatusHandler(statusUC, c.Logger),
		PipelineCompleted: handler.NewPipelineCompletedHandler(cfg.App.InternalToken, c.Cache, hub, c.Logger),
		WS:                ws.NewHandler(hub, c.Logger),
	}).Register(f)

	return &App{Fiber: f, Hub: hub}
}

// Bootstrap connects dependencies, applies migrations and starts the
// websocket hub. The returned cleanup stops the hub and closes connections.
func Bootstrap(cfg config.Config, logger *log.Logger) (*App, func() error, error) {
	c, err := NewContainer(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Migrate(context.Background()); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	app := New(cfg, c)
	ctx, cancel := context.WithCancel(context.Background())
	go app.Hub.Run(ctx)

	cleanup := func() error {
		cancel()
		return c.Close()
	}
	return app, cleanup, nil
}

func registerGlobalMiddleware(app *fiber.App, logger *log.Logger) {
	if app == nil {
		return
	}
	app.Use(middleware.NewAccessLogMiddleware(logger, "/health", "/ws/jobs").Middleware())
	app.Use(middleware.NewErrorMiddleware(logger).Middleware())
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
