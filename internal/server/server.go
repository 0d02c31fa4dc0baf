package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inkwell-comics/modsvc/config"
	"github.com/inkwell-comics/modsvc/internal/db"
	"github.com/inkwell-comics/modsvc/internal/handlers"
	"github.com/inkwell-comics/modsvc/internal/mq"
	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/internal/realtime"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server, the realtime hub and the decision consumer.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB

	users         *store.UserRepository
	hub           *realtime.Hub
	tracker       *presence.Tracker
	bus           *mq.MQ
	notifications *services.NotificationService

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	backend, err := mq.NewBackend(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("mq backend: %w", err)
	}
	bus := mq.New(backend)
	publisher := mq.NewDecisionPublisher(bus, cfg.MQ.DecisionsChannel, logger.With("component", "mq"))

	userRepo := store.NewUserRepository(dbConn)
	moderationRepo := store.NewModerationRepository(dbConn)
	reportRepo := store.NewReportRepository(dbConn)
	auditRepo := store.NewAuditLogRepository(dbConn)
	notificationRepo := store.NewNotificationRepository(dbConn)

	hub := realtime.NewHub(logger)
	registry := presence.NewRegistry()
	tracker := presence.NewTracker(registry, userRepo, hub, logger, presence.TrackerOptions{
		QueueSize:    cfg.Presence.QueueSize,
		WriteTimeout: cfg.Presence.WriteTimeout,
	})
	hub.Observe(tracker)

	userService := services.NewUserService(userRepo)
	adminService := services.NewAdminAccountService(userRepo, auditRepo, hub, logger)
	moderationService := services.NewModerationService(moderationRepo, publisher, logger)
	reportService := services.NewReportService(reportRepo, userRepo, adminService, publisher, logger)
	notificationService := services.NewNotificationService(notificationRepo, userRepo, hub, logger)

	auth := handlers.NewAuthenticator(userService, cfg.JWTSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws", handlers.WebsocketHandler(auth, hub, logger))

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, auth, userService)
		})
		r.Route("/moderation", func(r chi.Router) {
			handlers.ModerationRouter(r, moderationService, auth.RequireAuth)
		})
		r.Route("/comics", func(r chi.Router) {
			handlers.ComicRouter(r, moderationService, auth.RequireAuth)
		})
		r.Route("/reports", func(r chi.Router) {
			handlers.ReportRouter(r, reportService, cfg.RateLimit, auth.RequireAuth)
		})
		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, adminService, registry, auth.RequireAuth)
		})
		r.Route("/notifications", func(r chi.Router) {
			handlers.NotificationRouter(r, notificationService, auth.RequireAuth)
		})
	})

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
		cfg:           cfg,
		logger:        logger,
		httpServer:    httpServer,
		router:        router,
		db:            dbConn,
		users:         userRepo,
		hub:           hub,
		tracker:       tracker,
		bus:           bus,
		notifications: notificationService,
		stop:          make(chan struct{}),
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the server until it fails.
func (s *Server) Start() error {
	return s.Run(context.Background())
}

// Run resets stale presence, then serves HTTP and consumes decision events
// until ctx is cancelled or either of them fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := presence.Sweep(ctx, s.users, s.logger); err != nil {
		return fmt.Errorf("presence sweep: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := mq.SubscribeDecisions(gctx, s.bus, s.cfg.MQ.DecisionsChannel, s.logger, s.notifications.HandleDecision)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("decision consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown asks Run to stop. Run drains HTTP requests and closes the
// hub, the presence tracker, the queue and the database before returning.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *Server) close() {
	// Connections deregister through the tracker before it stops.
	s.hub.Close()
	s.tracker.Close()
	if err := s.bus.Close(); err != nil {
		s.logger.Warn("failed to close mq backend", "err", err)
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
