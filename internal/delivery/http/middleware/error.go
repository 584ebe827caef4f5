package middleware

import (
	"errors"
	"log"

	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/pkg/response"
	"job-pipeline/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type AppError struct {
	StatusCode int
	Message    string
	Data       any
	Cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewAppError(statusCode int, message string, data any, cause error) *AppError {
	return &AppError{StatusCode: statusCode, Message: message, Data: data, Cause: cause}
}

type ErrorMiddleware struct {
	logger *log.Logger
}

func NewErrorMiddleware(logger *log.Logger) *ErrorMiddleware {
	if logger == nil {
		logger = log.Default()
	}
	return &ErrorMiddleware{logger: logger}
}

func (m *ErrorMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Printf("[HTTP] panic recovered path=%s: %v", c.Path(), r)
				err = response.Error(c, fiber.StatusInternalServerError, response.MessageInternalServerError, nil)
			}
		}()

		err = c.Next()
		if err == nil {
			return nil
		}

		status, msg, data := normalizeError(err)
		if status >= 500 {
			m.logger.Printf("[HTTP] error method=%s path=%s status=%d err=%v", c.Method(), c.Path(), status, err)
		}
		return response.Error(c, status, msg, data)
	}
}

// normalizeError never leaks the message of a 5xx cause.
func normalizeError(err error) (int, string, any) {
	if err == nil {
		return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusCode
		if status <= 0 || status >= 500 {
			if status == fiber.StatusServiceUnavailable {
				return status, response.MessageServiceUnavailable, nil
			}
			return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
		}
		msg := appErr.Message
		if msg == "" {
			msg = response.MessageForStatus(status)
		}
		return status, msg, appErr.Data
	}

	var verr *job.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.StatusUnprocessableEntity, verr.Error(), nil
	case errors.Is(err, usecase.ErrInvalidInput):
		return fiber.StatusBadRequest, err.Error(), nil
	case errors.Is(err, usecase.ErrNotFound), errors.Is(err, job.ErrNotFound):
		return fiber.StatusNotFound, response.MessageNotFound, nil
	case errors.Is(err, job.ErrPersistenceConflict):
		return fiber.StatusConflict, response.MessageConflict, nil
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status := fiberErr.Code
		if status <= 0 || status >= 500 {
			return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
		}
		msg := fiberErr.Message
		if msg == "" {
			msg = response.MessageForStatus(status)
		}
		return status, msg, nil
	}

	return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
}

func asFiberError(err error, target **fiber.Error) bool { return errors.As(err, target) }
func asAppError(err error, target **AppError) bool      { return errors.As(err, target) }
