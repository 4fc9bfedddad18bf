package server

import (
	"creditflow/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// parseID extracts the :id route parameter as a positive uint. On failure it writes a
// 400 response and returns ok=false; the handler should then return nil.
func parseID(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("id", "Invalid ID"))
		return 0, false
	}
	return uint(id), true
}

// parseLimit reads ?limit, clamped to (0, maxActivityLimit].
func parseLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultActivityLimit)
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	return limit
}

// parseBody decodes the JSON body into dst, writing a 400 on malformed input.
func parseBody(c *fiber.Ctx, dst interface{}) bool {
	if err := c.BodyParser(dst); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("body", "Invalid request body"))
		return false
	}
	return true
}
