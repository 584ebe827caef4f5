package handler

import (
	"fmt"
	"log"
	"time"

	"job-pipeline/internal/delivery/http/middleware"
	"job-pipeline/internal/pkg/response"
	"job-pipeline/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type PipelineStatusHandler struct {
	uc  usecase.PipelineStatusUsecase
	log *log.Logger
}

func NewPipelineStatusHandler(uc usecase.PipelineStatusUsecase, logger *log.Logger) *PipelineStatusHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &PipelineStatusHandler{uc: uc, log: logger}
}

func (h *PipelineStatusHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/pipeline/status", h.GetStatus)
}

func (h *PipelineStatusHandler) GetStatus(c fiber.Ctx) error {
	start := time.Now()
	from, err := parseQueryDate(c, "from")
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "from must be a YYYY-MM-DD date", nil, err)
	}
	to, err := parseQueryDate(c, "to")
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "to must be a YYYY-MM-DD date", nil, err)
	}

	data, err := h.uc.GetStatus(c.Context(), usecase.StatusQuery{Company: c.Query("company"), From: from, To: to})
	if err != nil {
		h.log.Printf("http_request method=%s path=%s status=error duration=%s err=%v", c.Method(), c.Path(), time.Since(start), err)
		return err
	}
	h.log.Printf("http_request method=%s path=%s status=ok duration=%s", c.Method(), c.Path(), time.Since(start))
	return response.Success(c, fiber.StatusOK, response.MessageOK, data)
}

func parseQueryDate(c fiber.Ctx, key string) (time.Time, error) {
	s := c.Query(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t, nil
}
