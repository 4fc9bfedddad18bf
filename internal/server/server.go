// Package server contains the HTTP and WebSocket handlers for the credit workflow API.
package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "creditflow/docs" // swagger docs
	"creditflow/internal/cache"
	"creditflow/internal/codegen"
	"creditflow/internal/config"
	"creditflow/internal/database"
	"creditflow/internal/middleware"
	"creditflow/internal/models"
	"creditflow/internal/notifications"
	"creditflow/internal/observability"
	"creditflow/internal/repository"
	"creditflow/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	repo           repository.CreditRepository
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	credit         *service.CreditService
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	idempotency    *middleware.IdempotencyStore
	evictionDone   <-chan struct{}
	pgPinger       *database.PostgresPinger
}

// NewServer opens the configured store and Redis, then builds the server.
func NewServer(cfg *config.Config) (*Server, error) {
	repo, err := database.OpenRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("store initialization failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, repo, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; events then stay within this process.
func NewServerWithDeps(cfg *config.Config, repo repository.CreditRepository, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)
	// Service and repository logs pick up request_id and actor from the context.
	observability.SetLogger(middleware.Logger)

	s := &Server{
		config:         cfg,
		repo:           repo,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("creditflow-api"),
		hub:            notifications.NewHub(),
	}
	if cfg.StoreDriver == config.StorePostgres {
		pinger, err := database.OpenPostgresPinger(database.PostgresDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("postgres readiness check: %w", err)
		}
		s.pgPinger = pinger
	}
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.notifier = notifications.NewNotifier(redisClient, s.hub)
	if redisClient != nil {
		s.idempotency = middleware.NewIdempotencyStore(redisClient, "creditflow")
	}

	s.credit = service.NewCreditService(repo, service.Config{
		Generator:    codegen.New(),
		Publisher:    s.notifier,
		CodeTTL:      cfg.CodeTTL(),
		BoundCodeTTL: cfg.BoundCodeTTL(),
		Retention:    cfg.CodeRetention(),
	})

	app := fiber.New(fiber.Config{
		AppName: "Creditflow API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app

	return s, nil
}

// App exposes the configured Fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Credit exposes the workflow service.
func (s *Server) Credit() *service.CreditService { return s.credit }

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so browsers still see CORS headers on 429s.
	origins := strings.Join(s.config.Origins(), ",")
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api.Get("/swagger/*", swagger.HandlerDefault)

	// Actor must be in the request context before handlers log.
	credit := api.Group("/credit", middleware.AuthRequired, middleware.ContextMiddleware())

	requests := credit.Group("/requests")
	requests.Get("/", s.ListCreditRequests)
	requests.Post("/", middleware.Idempotency(s.idempotency, s.config.IdempotencyTTL()), s.SubmitCreditRequest)
	requests.Put("/:id/approve", middleware.AdminRequired, s.ApproveCreditRequest)
	requests.Put("/:id/reject", middleware.AdminRequired, s.RejectCreditRequest)
	requests.Get("/:id", s.GetCreditRequest)

	credit.Post("/verify", middleware.RateLimit(
		s.redis, s.config.VerifyRateLimit, time.Minute, "verify"), s.VerifyCode)
	credit.Get("/history/:customer", s.GetCustomerHistory)

	codes := credit.Group("/codes", middleware.AdminRequired)
	codes.Get("/", s.ListCodes)
	codes.Post("/", middleware.Idempotency(s.idempotency, s.config.IdempotencyTTL()), s.GenerateCode)
	codes.Delete("/:id", s.RevokeCode)

	credit.Get("/activity", middleware.AdminRequired, s.GetActivity)

	ws := api.Group("/ws", middleware.WebSocketAuthRequired)
	ws.Get("/credit", s.CreditEventsHandler())
}

// LivenessCheck handles liveness check requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck reports whether the credit store and Redis are reachable. Redis is
// optional; without it the server runs single-instance and stays ready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if _, err := s.repo.ListActivity(ctx, 1); err != nil {
		storeStatus = "unhealthy"
	}
	if s.pgPinger != nil {
		if err := s.pgPinger.Ping(ctx); err != nil {
			storeStatus = "unhealthy"
		}
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if storeStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"store": storeStatus,
			"redis": redisStatus,
		},
		"websocketClients": s.hub.Count(),
		"time":             time.Now().UTC(),
	})
}

// Start wires the event hub and eviction sweeper, then listens on the configured port.
func (s *Server) Start() error {
	if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
		middleware.Logger.Error("failed to start credit event wiring", "error", err)
	}
	s.evictionDone = s.credit.StartEviction(s.shutdownCtx, s.config.EvictionInterval())

	middleware.Logger.Info("Server starting", "port", s.config.Port, "store", s.config.StoreDriver)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops wiring and the sweeper.
	s.shutdownFn()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		middleware.Logger.Error("error shutting down HTTP server", "error", err)
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down event hub", "error", err)
	}

	if s.evictionDone != nil {
		select {
		case <-s.evictionDone:
		case <-ctx.Done():
		}
	}

	if err := s.repo.Close(); err != nil {
		middleware.Logger.Error("error closing credit store", "error", err)
	}

	if s.pgPinger != nil {
		_ = s.pgPinger.Close()
	}

	if s.redis != nil {
		var err error
		if s.redis == cache.GetClient() {
			err = cache.Close()
		} else {
			err = s.redis.Close()
		}
		if err != nil {
			middleware.Logger.Error("error closing redis", "error", err)
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
