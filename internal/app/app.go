package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/billing"
	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/db"
	"github.com/streamvault/streamvault/internal/http/api"
	"github.com/streamvault/streamvault/internal/jobs"
	"github.com/streamvault/streamvault/internal/panel"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// shutdownGrace bounds how long in-flight requests may run after a stop
// signal.
const shutdownGrace = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server and the background job worker, and blocks
// until the context is canceled.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	accountService := accounts.NewService(conn)
	panelClient := panel.NewClient()
	reactor := billing.NewReactor(conn, accountService)

	workerCfg, errWorker := config.LoadWorkerConfig(configPath)
	if errWorker != nil {
		return errWorker
	}
	executors := jobs.NewExecutors(conn, accountService, panelClient)
	worker := jobs.NewWorker(conn, executors, workerCfg.PollInterval)
	worker.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, conn, accountService, reactor)

	if port <= 0 {
		port = 8318
	}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}
