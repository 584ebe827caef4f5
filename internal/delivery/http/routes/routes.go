package routes

import (
	"job-pipeline/internal/delivery/http/handler"
	"job-pipeline/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type Handlers struct {
	Health            *handler.HealthHandler
	Jobs              *handler.JobsHandler
	PipelineStatus    *handler.PipelineStatusHandler
	PipelineCompleted *handler.PipelineCompletedHandler
	WS                *ws.Handler
}

type Registry struct {
	h Handlers
}

func NewRegistry(h Handlers) *Registry {
	return &Registry{h: h}
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.registerHealth(app)
	r.registerAPI(app)
	r.registerWS(app)
}

func (r *Registry) registerHealth(app *fiber.App) {
	if r.h.Health != nil {
		r.h.Health.RegisterRoutes(app)
	}
}

func (r *Registry) registerAPI(app *fiber.App) {
	v1 := app.Group("/api").Group("/v1")
	if r.h.Jobs != nil {
		r.h.Jobs.RegisterRoutes(v1)
	}
	if r.h.PipelineStatus != nil {
		r.h.PipelineStatus.RegisterRoutes(v1)
	}
	if r.h.PipelineCompleted != nil {
		r.h.PipelineCompleted.RegisterRoutes(v1)
	}
}

func (r *Registry) registerWS(app *fiber.App) {
	if r.h.WS != nil {
		app.Get("/ws/jobs", r.h.WS.HandleJobsWS)
	}
}
