package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vshumov/minibank/internal/db"
	"github.com/vshumov/minibank/internal/handlers"
	"github.com/vshumov/minibank/internal/logger"
	"github.com/vshumov/minibank/internal/repository"
	"github.com/vshumov/minibank/internal/repository/filestore"
	"github.com/vshumov/minibank/internal/repository/postgres"
	"github.com/vshumov/minibank/internal/service/admin"
	"github.com/vshumov/minibank/internal/service/auth"
	"github.com/vshumov/minibank/internal/service/auth/tokenmanager"
	"github.com/vshumov/minibank/internal/service/transfer"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger

	// Cleanup closes storage resources, set when the backend needs it
	Cleanup func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Initialize storage backend
	var storage repository.Storage
	cleanup := func() {}

	switch c.Storage {
	case StoragePostgres:
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		storage = postgres.NewStorage(pool)
		cleanup = pool.Close
	case StorageFile:
		store, err := filestore.New(c.StoreFile)
		if err != nil {
			return nil, fmt.Errorf("error while opening store file. Err: %w", err)
		}
		storage = store
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage.RefreshToken())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authService, err := auth.NewService(auth.Config{}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	engine := transfer.NewEngine(storage)
	adminService := admin.NewService(storage)

	mux := handlers.NewRouter(authService, engine, adminService, log)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		Logger:     log,
		Cleanup:    cleanup,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	s.Cleanup()

	return err
}
