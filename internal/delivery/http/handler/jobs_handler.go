package handler

import (
	"fmt"
	"strconv"

	"job-pipeline/internal/delivery/http/dto"
	"job-pipeline/internal/delivery/http/middleware"
	"job-pipeline/internal/pkg/response"
	"job-pipeline/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type JobsHandler struct {
	uc usecase.JobListUsecase
}

func NewJobsHandler(uc usecase.JobListUsecase) *JobsHandler {
	return &JobsHandler{uc: uc}
}

func (h *JobsHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/jobs", h.HandleListJobs)
	r.Get("/jobs/:signature", h.HandleGetJob)
}

func (h *JobsHandler) HandleListJobs(c fiber.Ctx) error {
	limit, err := parseQueryIntStrict(c, "limit", 0)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "limit must be an integer", nil, err)
	}
	offset, err := parseQueryIntStrict(c, "offset", 0)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "offset must be an integer", nil, err)
	}

	page, err := h.uc.ListJobs(c.Context(), usecase.JobListParams{
		Company:         c.Query("company"),
		WorkMode:        c.Query("work_mode"),
		ExperienceLevel: c.Query("experience_level"),
		Technology:      c.Query("technology"),
		Status:          usecase.ActivityFilter(c.Query("status")),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		return err
	}
	return response.Paginated(c, dto.NewJobSummaries(page.Items), page.Total, page.Limit, page.Offset)
}

func (h *JobsHandler) HandleGetJob(c fiber.Ctx) error {
	rec, err := h.uc.GetJob(c.Context(), c.Params("signature"))
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, rec)
}

func parseQueryIntStrict(c fiber.Ctx, key string, defaultVal int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
