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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fund-manager/internal/config"
	"fund-manager/internal/gateway"
	"fund-manager/internal/messaging"
	"fund-manager/internal/monitoring"
	"fund-manager/internal/summary"
	"fund-manager/pkg/cache"
	"fund-manager/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Init(cfg.Logger, "fund-client")
	log.Info("Starting fund client gateway...")

	// Initialize Redis cache
	cacheClient, err := cache.NewRedisClient(cfg.Cache)
	if err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	defer cacheClient.Close()

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
	}

	store := summary.NewRedisStore(cacheClient, cfg.Cache.SummaryKey, cfg.Cache.SummaryChannel, cfg.Cache.SummaryTTL)
	tracker := summary.NewTracker(store, log, metrics)

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 10*time.Second)
	if err := tracker.Restore(restoreCtx); err != nil {
		log.Warn("Starting from an empty summary: ", err)
	}
	cancelRestore()

	factory := messaging.NewDialFactory(
		cfg.RabbitMQ.AMQPURL(),
		cfg.RabbitMQ.Heartbeat,
		cfg.RabbitMQ.MaxReconnectAttempts,
		cfg.RabbitMQ.ReconnectDelay,
		log.WithField("component", "rabbitmq"),
	)
	defer factory.Close()

	topology := messaging.NewTopology(cfg.Topology.AppName)
	client := messaging.NewClient(factory, topology.Default(), log, metrics)
	client.Subscribe(tracker)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 60*time.Second)
	err = client.Start(startCtx)
	cancelStart()
	if err != nil {
		log.Fatal("Failed to start messaging client: ", err)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := gateway.NewHandler(cfg.Gateway, client, tracker, store, log)
	router := gateway.NewRouter(cfg.Gateway, handler, log)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Gateway.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// open WebSocket streams are hijacked and not waited for by Shutdown
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: ", err)
	}

	if err := client.Stop(); err != nil {
		log.Error("Messaging client did not stop cleanly: ", err)
	}

	log.Info("Gateway exited")
}
