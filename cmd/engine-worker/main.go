// Command engine-worker runs N Worker Loop instances against the shared
// execution queue.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/flowengine/engine/internal/engine/callback"
	"github.com/flowengine/engine/internal/engine/dag"
	"github.com/flowengine/engine/internal/engine/event"
	"github.com/flowengine/engine/internal/engine/node"
	"github.com/flowengine/engine/internal/engine/queue"
	"github.com/flowengine/engine/internal/engine/statusstore"
	"github.com/flowengine/engine/internal/engine/worker"
	"github.com/flowengine/engine/pkg/config"
	"github.com/flowengine/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load("engine-worker")
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

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("worker: invalid redis url", "error", err)
	}
	rdb := redis.NewClient(opts)

	q := queue.New(rdb, log)
	store := statusstore.New(rdb)
	reporter := callback.New(cfg.Engine.BackendBaseURL, cfg.Engine.StatusSecret, log)
	registry := node.NewRegistry(cfg.Engine.SMTPPort)
	scheduler := dag.NewScheduler(registry)
	publisher := event.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	defer publisher.Close()

	pool := worker.NewPool(cfg.Engine.WorkerCount, q, store, reporter, scheduler, publisher, cfg.Engine.MaxRetries, log)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	log.Info("engine-worker: started", "workers", cfg.Engine.WorkerCount)

	healthMux := gin.New()
	healthMux.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	healthMux.GET("/metrics", gin.WrapH(promhttp.Handler()))
	healthMux.GET("/debug/breakers", func(c *gin.Context) { c.JSON(http.StatusOK, registry.BreakerStates()) })
	healthSrv := &http.Server{Addr: ":9090", Handler: healthMux}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("engine-worker: health server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("engine-worker: shutting down")
	cancel()
	pool.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	log.Info("engine-worker: exited")
}
