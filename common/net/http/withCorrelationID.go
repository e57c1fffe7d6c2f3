package http

import (
	"github.com/gofiber/fiber/v2"
	gid "github.com/google/uuid"
)

// WithCorrelationID stamps the request/response pair with a correlation
// id, reusing one the caller already supplied (a demo client retrying a
// queued write wants its correlation id to survive the retry) rather than
// always minting a fresh one.
func WithCorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := c.Get(headerCorrelationID)
		if cid == "" {
			cid = gid.New().String()
			c.Request().Header.Add(headerCorrelationID, cid)
		}

		c.Set(headerCorrelationID, cid)

		return c.Next()
	}
}
