package response

import "github.com/gofiber/fiber/v3"

type SemanticResponse struct {
	Status  int       `json:"status"`
	Message string    `json:"message"`
	Data    any       `json:"data"`
	Meta    *PageMeta `json:"meta,omitempty"`
}

type PageMeta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

const (
	MessageOK                  = "ok"
	MessageBadRequest          = "bad request"
	MessageUnauthorized        = "unauthorized"
	MessageForbidden           = "forbidden"
	MessageNotFound            = "not found"
	MessageConflict            = "conflict"
	MessageUnprocessableEntity = "unprocessable entity"
	MessageServiceUnavailable  = "service unavailable"
	MessageInternalServerError = "internal server error"
	MessageError               = "error"
)

func Success(c fiber.Ctx, status int, message string, data any) error {
	return write(c, status, message, data, nil)
}

// Paginated wraps one page of a listing with its window.
func Paginated(c fiber.Ctx, data any, total, limit, offset int) error {
	meta := &PageMeta{Total: total, Limit: limit, Offset: offset, HasMore: offset+limit < total}
	return write(c, fiber.StatusOK, MessageOK, data, meta)
}

func Error(c fiber.Ctx, status int, message string, data any) error {
	return write(c, status, message, data, nil)
}

func write(c fiber.Ctx, status int, message string, data any, meta *PageMeta) error {
	st := normalizeStatus(status)
	return c.Status(st).JSON(SemanticResponse{Status: st, Message: normalizeMessage(message, st), Data: data, Meta: meta})
}

func normalizeStatus(status int) int {
	if status < 100 || status > 599 {
		return fiber.StatusInternalServerError
	}
	return status
}

func normalizeMessage(message string, status int) string {
	if message != "" {
		return message
	}
	return MessageForStatus(status)
}

func MessageForStatus(status int) string {
	switch status {
	case fiber.StatusOK:
		return MessageOK
	case fiber.StatusBadRequest:
		return MessageBadRequest
	case fiber.StatusUnauthorized:
		return MessageUnauthorized
	case fiber.StatusForbidden:
		return MessageForbidden
	case fiber.StatusNotFound:
		return MessageNotFound
	case fiber.StatusConflict:
		return MessageConflict
	case fiber.StatusUnprocessableEntity:
		return MessageUnprocessableEntity
	case fiber.StatusServiceUnavailable:
		return MessageServiceUnavailable
	default:
		if status >= 500 {
			return MessageInternalServerError
		}
		return MessageError
	}
}
