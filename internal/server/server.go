package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/usercore/apiserver/config"
	"github.com/usercore/apiserver/internal/auth"
	"github.com/usercore/apiserver/internal/db"
	"github.com/usercore/apiserver/internal/handlers"
	"github.com/usercore/apiserver/internal/mq"
	"github.com/usercore/apiserver/internal/services"
	"github.com/usercore/apiserver/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	// APIPrefix is the versioned mount point; routes are also served at the root.
	APIPrefix = "/api/v1"

	shutdownTimeout = 10 * time.Second
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	mongo      *mongo.Client
	broker     mq.Backend
	log        *zap.Logger
}

// Deps are the collaborators the router needs.
type Deps struct {
	Config   config.Config
	Log      *zap.Logger
	Accounts *services.AccountService
	Users    *services.UserService
	Tokens   handlers.TokenVerifier
	Store    handlers.Pinger
}

// New connects to MongoDB and the broker and builds the HTTP server.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	client, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	broker, err := mq.Open(ctx, cfg)
	if err != nil {
		_ = db.Disconnect(client, shutdownTimeout)
		return nil, fmt.Errorf("open mq backend: %w", err)
	}

	userRepo := store.NewUserRepository(client.Database(cfg.Database.Name))
	tokens := auth.NewTokenService(cfg.JWT)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	events := mq.NewEventPublisher(broker, cfg.MQ.Channel, log)

	router := NewRouter(Deps{
		Config:   cfg,
		Log:      log,
		Accounts: services.NewAccountService(userRepo, hasher, tokens, events),
		Users:    services.NewUserService(userRepo, hasher, events),
		Tokens:   tokens,
		Store:    userRepo,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		mongo:      client,
		broker:     broker,
		log:        log,
	}, nil
}

// NewRouter builds the middleware chain and mounts every route at the root
// and under APIPrefix.
func NewRouter(d Deps) *chi.Mux {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(
		handlers.RequestID,
		middleware.RealIP,
		handlers.Logging(log),
		handlers.Recovery(log),
		handlers.CORS(d.Config.HTTP.CORSOrigin),
	)
	if d.Config.HTTP.RateLimitRPS > 0 {
		router.Use(handlers.NewRateLimiter(d.Config.HTTP.RateLimitRPS, d.Config.HTTP.RateLimitBurst).Middleware)
	}
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(d.Store, log))

	authenticate := handlers.Authenticate(d.Tokens, d.Accounts, log)
	api := func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, d.Accounts, authenticate, log)
		})
		r.Route("/user", func(r chi.Router) {
			handlers.UserRouter(r, d.Users, authenticate, log)
		})
	}
	router.Route(APIPrefix, api)
	router.Group(api)

	return router
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and MongoDB.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		if cerr := s.broker.Close(); cerr != nil {
			s.log.Warn("closing mq backend", zap.Error(cerr))
		}
	}
	if derr := db.Disconnect(s.mongo, shutdownTimeout); derr != nil && err == nil {
		err = derr
	}
	return err
}
