package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/jointaccount/internal/account"
	"github.com/congo-pay/jointaccount/internal/auth"
	"github.com/congo-pay/jointaccount/internal/config"
	"github.com/congo-pay/jointaccount/internal/events"
	"github.com/congo-pay/jointaccount/internal/identity"
	"github.com/congo-pay/jointaccount/internal/ledger"
	"github.com/congo-pay/jointaccount/internal/middleware"
	"github.com/congo-pay/jointaccount/internal/withdrawal"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	Ledger ledger.Ledger
	Users  identity.Repository
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Ledger == nil || d.Users == nil {
		return errors.New("routes: ledger and user repository are required")
	}
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	identitySvc := identity.NewService(d.Users)
	authSvc := auth.NewService(d.Cfg, d.Users)
	accountSvc := account.NewService(d.Ledger, d.Users)
	withdrawalSvc := withdrawal.NewService(d.Ledger, d.Logger)

	identityHandler := identity.NewHandler(identitySvc)
	authHandler := auth.NewHandler(identitySvc, authSvc)
	accountHandler := account.NewHandler(accountSvc)
	withdrawalHandler := withdrawal.NewHandler(withdrawalSvc)
	eventHandler := events.NewHandler(d.Ledger)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes must be registered before the guarded group below.
	RegisterIdentityRoutes(api, identityHandler)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit, d.Logger))

	// Protected routes: the bearer token subject is the caller identity.
	guards := []fiber.Handler{middleware.JWTAuth(authSvc)}
	if d.Cache != nil {
		guards = append(guards, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected := api.Group("", guards...)
	RegisterSessionRoutes(protected, authHandler, identityHandler)
	RegisterAccountRoutes(protected, accountHandler, withdrawalHandler)
	RegisterEventRoutes(protected, eventHandler)

	return nil
}
