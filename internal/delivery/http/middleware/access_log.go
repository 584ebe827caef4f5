package middleware

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type AccessLogMiddleware struct {
	logger *log.Logger
	skip   map[string]bool
}

// NewAccessLogMiddleware logs one line per request. Paths listed in quiet
// (health probes, websocket upgrades) are not logged.
func NewAccessLogMiddleware(logger *log.Logger, quiet ...string) *AccessLogMiddleware {
	if logger == nil {
		logger = log.Default()
	}
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[strings.TrimSpace(p)] = true
	}
	return &AccessLogMiddleware{logger: logger, skip: skip}
}

func (m *AccessLogMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(RequestIDHeader, rid)

		err := c.Next()
		if m.skip[c.Path()] {
			return err
		}

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			var ae *AppError
			switch {
			case asFiberError(err, &fe):
				status = fe.Code
			case asAppError(err, &ae):
				status = ae.StatusCode
			}
		}

		m.logger.Printf(
			"[HTTP] rid=%s ip=%s method=%s path=%s status=%d latency=%s resp_bytes=%d ua=%q",
			rid, c.IP(), c.Method(), c.OriginalURL(), status, time.Since(start),
			len(c.Response().Body()), c.Get("User-Agent"),
		)
		return err
	}
}
