package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/venuely/apiserver/config"
	"github.com/venuely/apiserver/internal/db"
	"github.com/venuely/apiserver/internal/handlers"
	"github.com/venuely/apiserver/internal/metrics"
	appmw "github.com/venuely/apiserver/internal/middleware"
	"github.com/venuely/apiserver/internal/mq"
	"github.com/venuely/apiserver/internal/services"
	"github.com/venuely/apiserver/internal/storage"
	"github.com/venuely/apiserver/internal/store"
	"github.com/venuely/apiserver/internal/tokens"
)

// Dependencies are the collaborators the router is built from.
type Dependencies struct {
	Users    services.UserRepository
	Codes    services.VerificationRepository
	Notifier services.Notifier
	// Objects may be nil, in which case avatar endpoints answer 503.
	Objects services.ObjectStore
	DB      handlers.Pinger
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	limiter    *appmw.RateLimiter
	db         *sql.DB
	queue      *mq.MQ
	logger     zerolog.Logger
}

// New opens the database, the optional broker and object storage, and
// builds the router.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open mq: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, fmt.Errorf("open storage: %w", err)
	}

	deps := Dependencies{
		Users: store.NewUserRepository(dbConn),
		Codes: store.NewVerificationRepository(dbConn),
		DB:    dbConn,
	}
	if queue != nil {
		deps.Notifier = services.NewMQNotifier(queue, cfg.MQ.VerificationTopic)
	} else {
		logger.Warn().Msg("no message broker configured, verification codes will only be logged")
		deps.Notifier = services.NewLogNotifier(logger)
	}
	if objects != nil {
		deps.Objects = objects
	} else {
		logger.Info().Msg("object storage disabled, avatar uploads unavailable")
	}

	limits := appmw.PerMinute(cfg.RateLimit.AuthPerMinute)
	limits.TrustProxy = cfg.RateLimit.TrustProxyHeaders
	limiter := appmw.NewRateLimiter(limits)
	router := NewRouter(cfg, deps, logger, prometheus.NewRegistry(), limiter)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		limiter:    limiter,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// NewRouter builds the HTTP routes. limiter may be nil.
func NewRouter(cfg config.Config, deps Dependencies, logger zerolog.Logger, registry *prometheus.Registry, limiter *appmw.RateLimiter) *chi.Mux {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	issuer := tokens.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userService := services.NewUserService(deps.Users)
	verification := services.NewVerificationService(deps.Codes, deps.Users, deps.Notifier,
		services.WithCodeTTL(cfg.Auth.OTPTTL),
		services.WithMaxAttempts(cfg.Auth.OTPMaxAttempts),
	)
	avatars := services.NewAvatarService(deps.Users, deps.Objects)

	authMiddleware := handlers.RequireAuth(issuer, deps.Users, handlers.AuthConfig{
		RequireEmailVerified: cfg.Auth.RequireEmailVerified,
	}, collector)

	var limit func(http.Handler) http.Handler
	if limiter != nil {
		limit = limiter.Middleware
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, appmw.PeerAddr)
	if cfg.RateLimit.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(
		appmw.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(deps.DB))
	router.Method(http.MethodGet, "/metrics", metrics.Handler(registry))
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, handlers.NewAuthHandler(userService, verification, issuer, collector), authMiddleware, limit)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, handlers.NewUserHandler(userService, avatars), authMiddleware)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the limiter, broker
// and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.queue != nil {
		if qerr := s.queue.Close(); qerr != nil {
			s.logger.Warn().Err(qerr).Msg("failed to close message broker")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
