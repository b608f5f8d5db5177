package sync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	config "github.com/kairohq/backend/config/sync"
	"github.com/kairohq/backend/gateways/sync/clients/icsfeed"
	"github.com/kairohq/backend/gateways/sync/clients/recall"
	"github.com/kairohq/backend/gateways/sync/handler"
	"github.com/kairohq/backend/gateways/sync/scheduler"
	"github.com/kairohq/backend/pkg/clock"
	"github.com/kairohq/backend/pkg/logger"
	"github.com/kairohq/backend/services/meeting/storage"
	"github.com/kairohq/backend/services/meeting/usecase"
)

type Server struct {
	cfg       *config.Config
	log       *slog.Logger
	usecase   usecase.Usecase
	handler   *handler.Handler
	scheduler *scheduler.Scheduler
}

func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := logger.FromContext(ctx)
	log.Info("creating sync server",
		slog.Int("port", cfg.Port),
		slog.Int("sync_window_days", cfg.SyncWindowDays),
		slog.Bool("auto_join_enabled", cfg.AutoJoinEnabled),
		slog.Bool("database_configured", cfg.DatabaseURL != ""))

	var st storage.Storage
	if cfg.DatabaseURL != "" {
		var err error
		st, err = storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		log.Info("postgres storage ready")
	} else {
		st = storage.NewMemory()
		log.Warn("no DATABASE_URL set, using in-memory storage")
	}

	calendar := icsfeed.New(cfg.CalendarFeed.FeedURL, log)
	bots := recall.New(cfg.Recall.APIURL, cfg.Recall.APIKey, log)

	uc := usecase.New(st, calendar, bots, usecase.Config{
		SyncWindowDays:  cfg.SyncWindowDays,
		AutoJoinEnabled: cfg.AutoJoinEnabled,
		JoinLead:        time.Duration(cfg.JoinLeadMinutes) * time.Minute,
		PollActive:      time.Duration(cfg.PollActiveSeconds) * time.Second,
		PollIdle:        time.Duration(cfg.PollIdleSeconds) * time.Second,
	}, nil, clock.Real(), log)

	idle := time.Duration(cfg.PollIdleSeconds) * time.Second
	sched := scheduler.New(func(ctx context.Context) (time.Duration, error) {
		summary, err := uc.SyncAll(ctx)
		if err != nil {
			return 0, err
		}
		return time.Duration(summary.NextPollSeconds) * time.Second, nil
	}, idle, log)

	return &Server{
		cfg:       cfg,
		log:       log,
		usecase:   uc,
		handler:   handler.New(uc, log),
		scheduler: sched,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/api/v1", func(apiRouter chi.Router) {
		s.handler.Routes(apiRouter)
	})

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go s.scheduler.Run(schedCtx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("sync gateway started", slog.String("address", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		s.log.Info("start shutdown", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.log.Info("closing server due to context cancellation")
	}

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("graceful shutdown failed", slog.String("error", err.Error()))
		srv.Close()
		return fmt.Errorf("failed to gracefully shutdown server: %w", err)
	}

	s.log.Info("server stopped cleanly")
	return nil
}
