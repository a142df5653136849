package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"luminar-api/config"
	"luminar-api/middleware"
	"luminar-api/services"
)

const comingSoonMessage = "Luminar is currently in development. All features will be available at launch."

// Deps is everything the routes need
type Deps struct {
	Identity      services.IdentityProvider
	Challenge     services.ChallengeVerifier
	Replay        services.ReplayGuard
	Users         *services.UserService
	Clues         *services.ClueService
	Qualification *services.QualificationService
	Claims        *services.ClaimService
	Chapters      *services.ChapterService
	Progress      *services.ProgressService

	// SlotsInterval is how often the slots stream re-counts
	SlotsInterval time.Duration
	// PackDir, when set, is served under /uploads
	PackDir string
}

// NewApp builds the fiber app with the error handler every route relies on
func NewApp(cfg *config.Config) *fiber.App {
	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 10 * 1024 * 1024
	}
	return fiber.New(fiber.Config{
		AppName:      "luminar-api",
		BodyLimit:    bodyLimit,
		ErrorHandler: ErrorHandler,
	})
}

func SetupRoutes(app *fiber.App, cfg *config.Config, deps Deps) {
	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.Debug}))
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger())
	app.Use(helmet.New())
	origins := strings.Join(cfg.Server.AllowedOrigins, ",")
	if origins == "" {
		origins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, " + middleware.HeaderTurnstileToken,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, Retry-After",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	if deps.PackDir != "" {
		app.Static("/uploads", deps.PackDir)
	}

	if cfg.ComingSoon {
		app.All("/v1/*", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":       services.KindUnavailable,
				"message":     comingSoonMessage,
				"coming_soon": true,
			})
		})
	} else {
		v1 := app.Group("/v1")
		auth := middleware.Identity(deps.Identity, deps.Users)

		setupClueRoutes(v1, auth, deps)
		setupChapterRoutes(v1, auth, deps)
		setupUserRoutes(v1, auth, deps)
		setupAdminRoutes(v1, auth, cfg.Auth.AdminEmails, deps)
	}

	app.Use(func(c *fiber.Ctx) error {
		return errEndpointNotFound
	})
}
