package routes

import (
	"context"
	"errors"
	"strings"
	"time"

	"debt-tracker-backend/internal/auth"
	"debt-tracker-backend/internal/category"
	"debt-tracker-backend/internal/clock"
	"debt-tracker-backend/internal/config"
	"debt-tracker-backend/internal/database"
	"debt-tracker-backend/internal/debt"
	"debt-tracker-backend/internal/mailer"
	"debt-tracker-backend/internal/models"
	"debt-tracker-backend/internal/sweep"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Deps struct {
	Config            *config.Config
	Clock             clock.Clock
	Mailer            mailer.Sender
	DefaultCategoryID uint
	Journal           *sweep.Journal // nil when the sweep runs elsewhere
	Log               *zap.Logger
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var e *fiber.Error
		if errors.As(err, &e) {
			return c.Status(e.Code).JSON(fiber.Map{"error": e.Message})
		}
		log.Error("unexpected error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}

func accessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler set the final status before logging.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		)
		return nil
	}
}

func summaryOf(ctx context.Context, userID uint) (any, error) {
	s, err := debt.Summarize(ctx, database.DB, userID)
	if err != nil {
		return nil, err
	}
	return s.Response(), nil
}

func New(d Deps) *fiber.App {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(accessLog(log.With(zap.String("component", "http"))))

	origins := strings.Split(d.Config.CORS.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register", auth.RegisterHandler(d.Mailer))
	api.Post("/auth/register-admin", auth.RegisterAdminHandler())
	api.Post("/auth/login", auth.LoginHandler(d.Config))

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(d.Config.JWT.Secret))

	protected.Get("/auth/me", auth.MeHandler(summaryOf))

	// Debts, always scoped to the caller
	protected.Get("/debts/summary", debt.SummaryHandler())
	protected.Get("/debts/export", debt.ExportDebtsHandler())
	protected.Get("/debts", debt.ListDebtsHandler())
	protected.Post("/debts", debt.CreateDebtHandler(d.Clock, d.DefaultCategoryID))
	protected.Get("/debts/:id", debt.GetDebtHandler())
	protected.Put("/debts/:id", debt.UpdateDebtHandler(d.Clock))
	protected.Delete("/debts/:id", debt.DeleteDebtHandler())

	protected.Get("/categories", category.ListCategoriesHandler())

	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/categories", category.CreateCategoryHandler())
	adminRoutes.Get("/categories/:id", category.GetCategoryHandler())
	adminRoutes.Put("/categories/:id", category.UpdateCategoryHandler())
	adminRoutes.Delete("/categories/:id", category.DeleteCategoryHandler(d.DefaultCategoryID))

	if d.Journal != nil {
		adminRoutes.Get("/sweep/runs", sweep.ListRunsHandler(d.Journal))
	}

	return app
}
