package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/courseauth/internal/db"
	"github.com/nkiryanov/courseauth/internal/handlers"
	"github.com/nkiryanov/courseauth/internal/logger"
	"github.com/nkiryanov/courseauth/internal/repository/postgres"
	"github.com/nkiryanov/courseauth/internal/service/auth"
	"github.com/nkiryanov/courseauth/internal/service/auth/refreshstore"
	"github.com/nkiryanov/courseauth/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/courseauth/internal/service/denylist"
	"github.com/nkiryanov/courseauth/internal/service/ratelimit"
	"github.com/nkiryanov/courseauth/internal/service/sweeper"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Sweeper    *sweeper.Sweeper

	logger logger.Logger
	pool   *pgxpool.Pool
	redis  redis.UniversalClient
}

func NewServerApp(ctx context.Context, c *Config, l logger.Logger) (*ServerApp, error) {
	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	app := &ServerApp{
		ListenAddr: c.ListenAddr,
		logger:     l,
		pool:       pool,
	}

	// Redis is optional, limiter and denylist are disabled without it
	if c.RedisURL != "" {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error while parsing redis url. Err: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			app.Close()
			return nil, fmt.Errorf("redis is not reachable. Err: %w", err)
		}
		app.redis = client
	} else {
		l.Warn("redis is not configured, login limiter and access token denylist are disabled")
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey: c.SecretKey,
		AccessTTL: c.AccessTTL(),
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	refreshStore, err := refreshstore.New(refreshstore.Config{RefreshTTL: c.RefreshTTL()}, storage.Session())
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating refresh store. Err: %w", err)
	}

	authService, err := auth.NewService(
		auth.Config{
			Limiter: ratelimit.New(app.redis, ratelimit.Config{
				MaxAttempts: c.LoginMaxAttempts,
				Cooldown:    c.LoginCooldown(),
			}, l.With("component", "ratelimit")),
			Denylist: denylist.New(app.redis),
			Logger:   l.With("component", "auth"),
		},
		tokenManager,
		refreshStore,
		storage,
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(authService, pool, l)
	app.Sweeper = sweeper.New(c.SweepInterval(), refreshStore, l.With("component", "sweeper"))

	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.Sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	return err
}

// Close releases db pool and redis client
func (s *ServerApp) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	s.pool.Close()
}
