package sweep

import (
	"github.com/gofiber/fiber/v2"
)

const maxRunsLimit = 100

// GET /api/admin/sweep/runs?limit=20
func ListRunsHandler(j *Journal) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 20)
		if limit < 1 || limit > maxRunsLimit {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100")
		}

		runs, err := j.Recent(limit)
		if err != nil {
			return err
		}
		return c.JSON(runs)
	}
}
