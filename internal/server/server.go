package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bookfinder/apiserver/config"
	"github.com/bookfinder/apiserver/internal/db"
	"github.com/bookfinder/apiserver/internal/handlers"
	"github.com/bookfinder/apiserver/internal/logging"
	"github.com/bookfinder/apiserver/internal/mq"
	"github.com/bookfinder/apiserver/internal/notify"
	"github.com/bookfinder/apiserver/internal/reporting"
	"github.com/bookfinder/apiserver/internal/services"
	"github.com/bookfinder/apiserver/internal/storage"
	"github.com/bookfinder/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      mq.Backend
	auth       *services.AuthService
	reporter   *reporting.Reporter
	logger     logging.Logger

	stopWorker context.CancelFunc
	workerDone chan struct{}
}

// New opens the database and notification backends and builds the router.
func New(ctx context.Context, cfg config.Config, logger logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reporter := reporting.New(ctx, cfg.Sentry, logger)

	mailer, err := notify.NewMailer(cfg.Mail, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.Queue, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	var dispatcher notify.Dispatcher = notify.NewDirectDispatcher(mailer)
	if queue != nil {
		dispatcher = notify.NewQueueDispatcher(queue, cfg.Queue.Name)
	}
	notifier := notify.NewNotifier(mailer, dispatcher, notify.NewTemplates(objects, logger))

	authService := services.NewAuthService(
		services.AuthConfig{
			Secret:      cfg.Auth.JWTSecret,
			Issuer:      cfg.Auth.JWTIssuer,
			Audience:    cfg.Auth.JWTAudience,
			TokenTTL:    cfg.Auth.TokenTTL,
			OTPTTL:      cfg.Auth.OTPTTL,
			PhoneRegion: cfg.PhoneRegion,
		},
		store.NewUserRepository(dbConn),
		services.NewBcryptHasher(cfg.Auth.BcryptCost),
		notifier,
		logger,
	)

	s := &Server{
		db:       dbConn,
		queue:    queue,
		auth:     authService,
		reporter: reporter,
		logger:   logger,
	}
	s.router = NewRouter(cfg, authService, reporter, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// The in-process queue has no external consumer, so the server drains it.
	if memory, ok := queue.(*mq.MemoryBackend); ok {
		s.startWorker(notify.NewWorker(memory, cfg.Queue.Name, mailer, logger))
	}

	return s, nil
}

// NewRouter builds the HTTP routes around an auth service.
func NewRouter(cfg config.Config, authService *services.AuthService, reporter *reporting.Reporter, logger logging.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		reporter.Middleware,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		handlers.AuthRouter(r, authService, reporter, logger)
	})
	return router
}

func (s *Server) startWorker(w *notify.Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWorker = cancel
	s.workerDone = make(chan struct{})
	go func() {
		defer close(s.workerDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error(ctx, "notification worker stopped", "error", err)
		}
	}()
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight work and
// pending welcome emails, then releases backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.auth.Close()
	if s.stopWorker != nil {
		s.stopWorker()
		<-s.workerDone
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	s.reporter.Flush(2 * time.Second)
	return err
}
