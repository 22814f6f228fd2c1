// Command engine-ingest serves the Trigger Intake webhook surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/flowengine/engine/internal/engine/queue"
	"github.com/flowengine/engine/internal/engine/repository"
	"github.com/flowengine/engine/internal/engine/trigger"
	"github.com/flowengine/engine/pkg/config"
	"github.com/flowengine/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load("engine-ingest")
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		AddCaller:  cfg.Logger.AddCaller,
		Stacktrace: cfg.Logger.Stacktrace,
	})

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatal("ingest: failed to open database", "error", err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("ingest: failed to migrate database", "error", err)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("ingest: invalid redis url", "error", err)
	}
	rdb := redis.NewClient(opts)

	q := queue.New(rdb, log)
	webhookRepo := repository.NewWebhookRepository(db)
	executionRepo := repository.NewExecutionRepository(db)
	handler := trigger.NewHandler(webhookRepo, q, executionRepo, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	handler.Register(router)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: router}
	go func() {
		log.Info("engine-ingest: started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("engine-ingest: server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("engine-ingest: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("engine-ingest: forced shutdown", "error", err)
	}
	log.Info("engine-ingest: exited")
}

func openDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver == "postgres" {
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
}
