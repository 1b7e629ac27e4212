package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/orderledger/apiserver/config"
	"github.com/orderledger/apiserver/internal/db"
	"github.com/orderledger/apiserver/internal/handlers"
	"github.com/orderledger/apiserver/internal/mq"
	"github.com/orderledger/apiserver/internal/services"
	"github.com/orderledger/apiserver/internal/storage"
	"github.com/orderledger/apiserver/internal/store"
)

// Server wraps the HTTP server and its owned resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
}

// New constructs a Server: opens the database, selects the event broker and
// archive backends from config, and wires the store, service and handler
// layers together.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	broker, err := newBroker(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		if broker != nil {
			_ = broker.Close()
		}
		return nil, err
	}

	var events *services.Events
	if broker != nil {
		events = services.NewEvents(broker, cfg.EventsChannel)
	}

	userRepo := store.NewUserRepository(dbConn)
	orderRepo := store.NewOrderRepository(dbConn)
	sessionRepo := store.NewSessionRepository(dbConn)

	userService := services.NewUserService(userRepo)
	sessionService := services.NewSessionService(sessionRepo, jwtSecret, cfg.SessionTTL)
	orderService := services.NewOrderService(orderRepo, events)

	var archiver services.Archiver
	if archive != nil {
		archiver = archive
	}
	exportService := services.NewExportService(orderRepo, archiver, events)

	authHandler := handlers.NewAuthHandler(userService, sessionService)

	router := chi.NewRouter()
	router.Use(
		handlers.PeerAddr,
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, sessionService)
	})
	router.Route("/orders", func(r chi.Router) {
		handlers.OrderRouter(r, orderService, exportService, authHandler.RequireAuth)
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
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown and closes owned resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

func newBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.EventBroker {
	case "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq: %w", err)
		}
		slog.Info("event publishing enabled", "broker", "rabbitmq", "channel", cfg.EventsChannel)
		return mq.New(backend), nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		slog.Info("event publishing enabled", "broker", "pubsub", "channel", cfg.EventsChannel)
		return mq.New(backend), nil
	default:
		slog.Info("event publishing disabled")
		return nil, nil
	}
}

func newArchive(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	switch cfg.ArchiveBackend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("init gcs: %w", err)
		}
		backend = client
	default:
		slog.Info("export archiving disabled")
		return nil, nil
	}

	archive := storage.NewStorage(backend)
	if err := archive.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure archive bucket: %w", err)
	}
	slog.Info("export archiving enabled", "backend", cfg.ArchiveBackend, "bucket", archive.Bucket())
	return archive, nil
}
