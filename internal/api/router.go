package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	jsoniter "github.com/json-iterator/go"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/audit"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/repository"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/service"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/token"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/webhook"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/ws"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const gateSweepInterval = time.Minute

type Dependencies struct {
	Store    repository.SessionStore
	Catalog  *liveness.Catalog
	Tokens   *token.ResultService
	Detector provider.FaceDetector
	Webhook  *webhook.Service
	Audit    audit.Logger
	Options  service.Options

	// APIClients maps client name to the SHA-256 hex of its API key
	APIClients   map[string]string
	RateLimitMax int
}

type Router struct {
	app               *fiber.App
	logger            *slog.Logger
	deps              *Dependencies
	liveness          *service.LivenessService
	rateLimiter       *middleware.RateLimiter
	widgetRateLimiter *middleware.RateLimiter
	wsHub             *ws.Hub
	webhookWorker     *webhook.Worker
	cancelWorker      context.CancelFunc
	cancelHub         context.CancelFunc
	cancelJanitor     context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Liveguard API",
		JSONEncoder:  codec.Marshal,
		JSONDecoder:  codec.Unmarshal,
		BodyLimit:    int(provider.MaxImageBytes) + 1024*1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	var store handler.Pinger
	if r.deps != nil && r.deps.Store != nil {
		store = r.deps.Store
	}
	healthHandler := handler.NewHealthHandler(store)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	// Only configure liveness routes if dependencies were provided
	if r.deps == nil {
		return
	}

	// Initialize WebSocket Hub
	r.wsHub = ws.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	r.cancelHub = hubCancel
	go r.wsHub.Run(hubCtx)

	r.liveness = service.NewLivenessService(
		r.deps.Store,
		r.deps.Catalog,
		r.deps.Tokens,
		r.deps.Options,
		r.logger,
	).WithEvents(r.wsHub)

	if r.deps.Detector != nil {
		r.liveness.WithDetector(r.deps.Detector)
	}
	if r.deps.Audit != nil {
		r.liveness.WithAudit(r.deps.Audit)
	}

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	r.cancelJanitor = janitorCancel
	go r.liveness.RunJanitor(janitorCtx, gateSweepInterval)

	// Initialize Webhook Worker
	if r.deps.Webhook != nil && r.deps.Webhook.Enabled() {
		r.liveness.WithNotifier(r.deps.Webhook)
		r.webhookWorker = webhook.NewWorker(r.deps.Webhook, r.logger)

		ctx, cancel := context.WithCancel(context.Background())
		r.cancelWorker = cancel
		go r.webhookWorker.Run(ctx)
	}

	livenessHandler := handler.NewLivenessHandler(r.liveness, r.logger)
	widgetHandler := handler.NewWidgetHandler(r.liveness, r.logger)

	v1 := r.app.Group("/v1")

	// API key routes
	authed := v1.Group("/liveness")
	authed.Use(middleware.Auth(r.deps.APIClients))

	// Rate limiting (per client) - must come after auth to have client context
	rlConfig := middleware.DefaultRateLimiterConfig()
	if r.deps.RateLimitMax > 0 {
		rlConfig.Max = r.deps.RateLimitMax
	}
	r.rateLimiter = middleware.NewRateLimiter(rlConfig)
	authed.Use(r.rateLimiter.Handler())

	authed.Post("/sessions", livenessHandler.CreateSession)
	authed.Get("/sessions/:id", livenessHandler.GetSession)
	authed.Delete("/sessions/:id", livenessHandler.DeleteSession)
	authed.Post("/tokens/verify", livenessHandler.VerifyToken)
	authed.Get("/sessions/:id/events", ws.UpgradeMiddleware(), livenessHandler.PrepareWatch, ws.WatchHandler(r.wsHub))

	// Widget routes, addressed by session id only
	r.widgetRateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Max:          rlConfig.Max,
		Window:       time.Minute,
		KeyGenerator: middleware.SessionKey,
	})
	perSession := r.widgetRateLimiter.Handler()
	widget := v1.Group("/widget/liveness")

	widget.Post("/:id/frames", perSession, widgetHandler.SubmitFrame)
	widget.Post("/:id/images", perSession, widgetHandler.SubmitImage)
	widget.Post("/:id/reset", perSession, widgetHandler.Reset)
	widget.Get("/:id/stream", perSession, ws.UpgradeMiddleware(), widgetHandler.PrepareStream, ws.StreamHandler(r.liveness, r.logger))
}

func (r *Router) App() *fiber.App {
	return r.app
}

// Hub returns the session event hub, nil before Setup.
func (r *Router) Hub() *ws.Hub {
	return r.wsHub
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop WebSocket hub
	if r.cancelHub != nil {
		r.cancelHub()
	}

	if r.cancelJanitor != nil {
		r.cancelJanitor()
	}

	// Stop webhook worker
	if r.cancelWorker != nil {
		r.cancelWorker()
	}

	// Stop rate limiter cleanup goroutines
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}
	if r.widgetRateLimiter != nil {
		r.widgetRateLimiter.Stop()
	}

	return r.app.Shutdown()
}
