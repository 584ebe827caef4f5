package handler

import (
	"context"
	"crypto/subtle"
	"log"
	"strings"

	"job-pipeline/internal/delivery/http/middleware"
	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/notify"
	"job-pipeline/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type listingInvalidator interface {
	InvalidateListings(ctx context.Context) error
}

type jobsUpdatedNotifier interface {
	NotifyJobsUpdated(company, stage, status string)
}

// PipelineCompletedHandler receives the stage completion webhook posted by
// the pipeline worker.
type PipelineCompletedHandler struct {
	token  string
	cache  listingInvalidator
	hub    jobsUpdatedNotifier
	logger *log.Logger
}

func NewPipelineCompletedHandler(token string, cache listingInvalidator, hub jobsUpdatedNotifier, logger *log.Logger) *PipelineCompletedHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &PipelineCompletedHandler{token: strings.TrimSpace(token), cache: cache, hub: hub, logger: logger}
}

func (h *PipelineCompletedHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/internal/pipeline/completed", h.HandleCompleted)
}

func (h *PipelineCompletedHandler) HandleCompleted(c fiber.Ctx) error {
	tok := strings.TrimSpace(c.Get(notify.TokenHeader))
	if h.token == "" || subtle.ConstantTimeCompare([]byte(tok), []byte(h.token)) != 1 {
		return middleware.NewAppError(fiber.StatusUnauthorized, response.MessageUnauthorized, nil, nil)
	}

	var req notify.Completion
	if err := c.Bind().Body(&req); err != nil {
		h.logger.Printf("[Webhook] bad body err=%v", err)
		return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest, nil, err)
	}
	req.Company = strings.TrimSpace(req.Company)
	if req.Company == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "company is required", nil, nil)
	}
	stage, err := job.ParseStage(req.Stage)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid stage", nil, err)
	}

	h.logger.Printf("[Webhook] stage completed run=%s company=%s stage=%s status=%s completed=%d",
		req.RunID, req.Company, stage.Tag(), req.Status, req.Completed)

	if h.cache != nil {
		if err := h.cache.InvalidateListings(c.Context()); err != nil {
			h.logger.Printf("[Webhook] cache invalidation error err=%v", err)
		}
	}
	if h.hub != nil {
		h.hub.NotifyJobsUpdated(req.Company, stage.Tag(), req.Status)
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{
		"status":  "cache_invalidated",
		"company": req.Company,
		"stage":   stage.Tag(),
	})
}
