package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/auth"
	"github.com/userhub/apiserver/internal/db"
	"github.com/userhub/apiserver/internal/handlers"
	"github.com/userhub/apiserver/internal/mq"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/storage"
	"github.com/userhub/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     mq.Backend
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.Secret)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	userService := services.NewUserService(userRepo, tokens, cfg.Auth.SignUpTokenTTL, cfg.Auth.SignInTokenTTL)

	broker, err := newBroker(ctx, cfg.Broker)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if broker != nil {
		userService.WithEventPublisher(broker)
	}

	objects, err := newObjectStorage(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		closeBroker(broker)
		return nil, err
	}
	if objects != nil {
		if err := objects.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			closeBroker(broker)
			return nil, err
		}
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, tokens, cfg.Auth.DebugCookie, objects)
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
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	closeBroker(s.broker)
	return s.httpServer.Close()
}

func newBroker(ctx context.Context, cfg config.BrokerConfig) (mq.Backend, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		return mq.NewRabbitMQBackend(cfg.RabbitMQ)
	case "pubsub":
		return mq.NewPubSubBackend(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}

func newObjectStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "minio":
		return storage.NewMinioStorage(cfg.Minio)
	case "gcs":
		return storage.NewGCSStorage(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

func closeBroker(broker mq.Backend) {
	if broker != nil {
		_ = broker.Close()
	}
}
