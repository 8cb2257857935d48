package instrument

import (
	"math/rand"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"fieldengine/internal/config"
	"fieldengine/internal/metadata"
)

// Middleware opens a root span per request and puts the instrumenter in the
// request context. The X-Trace-ID header is propagated when present.
func Middleware(cfg config.InstrumentationConfig, buffer *EventBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || buffer == nil {
			return c.Next()
		}
		if cfg.SamplingRate < 1.0 && rand.Float64() > cfg.SamplingRate {
			return c.Next()
		}

		traceID := c.Get("X-Trace-ID")
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.NewString()
		}
		c.Set("X-Trace-ID", traceID)

		inst := NewInstrumenter(buffer)
		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), inst)
		ctx, span := inst.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)

		err := c.Next()

		// auth runs downstream as route middleware, so the user is only known now
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			span.SetMetadata("user_id", user.ID)
		}
		status := c.Response().StatusCode()
		span.SetMetadata("status_code", status)
		if status >= 400 || err != nil {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()
		return err
	}
}

// UserMiddleware copies the authenticated user into the request context so
// spans and events started by handlers carry the caller. Mount it after auth.
func UserMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			c.SetUserContext(WithUserID(c.UserContext(), user.ID))
		}
		return c.Next()
	}
}
