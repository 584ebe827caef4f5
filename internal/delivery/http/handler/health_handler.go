package handler

import (
	"job-pipeline/internal/delivery/http/dto"
	"job-pipeline/internal/pkg/response"
	"job-pipeline/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

// HealthHandler reports 503 only when the database is down. A missing cache
// degrades the service but does not fail the probe.
type HealthHandler struct {
	db    usecase.HealthChecker
	cache usecase.HealthChecker
}

func NewHealthHandler(db, cache usecase.HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Health)
}

func (h *HealthHandler) Health(c fiber.Ctx) error {
	out := dto.HealthResponse{
		Status:   "ok",
		Database: usecase.HealthOf(c.Context(), h.db),
		Cache:    usecase.HealthOf(c.Context(), h.cache),
	}
	status := fiber.StatusOK
	if out.Database != "up" {
		out.Status = "degraded"
		status = fiber.StatusServiceUnavailable
	}
	return response.Success(c, status, "", out)
}
