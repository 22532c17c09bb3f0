package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/touchlog/touchlog/internal/app/repository"
	"github.com/touchlog/touchlog/internal/app/service"
	inthttp "github.com/touchlog/touchlog/internal/http/handler"
	"github.com/touchlog/touchlog/internal/http/middleware"
	"github.com/touchlog/touchlog/internal/telemetry"
	"go.uber.org/zap"
)

// Dependencies bundles infrastructure dependencies required by the HTTP server.
type Dependencies struct {
	Logger    *zap.Logger
	Postgres  *pgxpool.Pool
	Redis     *redis.Client
	Tags      repository.TagRepository
	Events    repository.EventRepository
	Publisher *service.EventPublisher
	Recorder  *service.EventRecorder
	Geo       telemetry.GeoResolver
	Hasher    *telemetry.IPHasher
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	touchHandler := inthttp.NewTouchHandler(inthttp.TouchDeps{
		Logger:    s.deps.Logger,
		Tags:      s.deps.Tags,
		Publisher: s.deps.Publisher,
		Recorder:  s.deps.Recorder,
		Geo:       s.deps.Geo,
		Hasher:    s.deps.Hasher,
	})
	touchHandler.Register(s.app)

	pageHandler := inthttp.NewPageHandler(inthttp.PageDeps{
		Logger:   s.deps.Logger,
		Tags:     s.deps.Tags,
		Recorder: s.deps.Recorder,
		Geo:      s.deps.Geo,
		Hasher:   s.deps.Hasher,
	})
	pageHandler.Register(s.app)

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:     s.deps.Logger,
		TagService: service.NewTagService(s.deps.Tags, s.deps.Events),
	})
	apiHandler.Register(s.app)
}
