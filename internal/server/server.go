package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/jointaccount/internal/apierr"
	"github.com/congo-pay/jointaccount/internal/config"
	"github.com/congo-pay/jointaccount/internal/identity"
	"github.com/congo-pay/jointaccount/internal/ledger"
	"github.com/congo-pay/jointaccount/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	ledger ledger.Ledger
}

// New instantiates the HTTP server, picks the ledger and identity backends
// (Postgres when a pool is given, in-memory otherwise) and delegates route
// wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	var (
		ledgerBackend ledger.Ledger
		users         identity.Repository
	)
	if db != nil {
		ledgerBackend = ledger.NewPostgresLedger(db, cfg.Policy())
		users = identity.NewPostgresRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger")
		ledgerBackend = ledger.NewInMemory(cfg.Policy())
		users = identity.NewMemoryRepository()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: apierr.Handler(logger),
	})

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Ledger: ledgerBackend, Users: users}
	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, ledger: ledgerBackend}, nil
}

// Ledger returns the backend the routes were wired to, so the event relay
// tails the same log the API writes.
func (s *Server) Ledger() ledger.Ledger {
	return s.ledger
}

// App exposes the underlying Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
