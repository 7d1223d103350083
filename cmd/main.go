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
	"github.com/sirupsen/logrus"

	"fund-manager/internal/config"
	"fund-manager/internal/gateway"
	"fund-manager/internal/host"
	"fund-manager/internal/listener"
	"fund-manager/internal/messaging"
	"fund-manager/internal/monitoring"
	mongorepo "fund-manager/internal/repositories/mongo"
	"fund-manager/internal/scheduler"
	"fund-manager/pkg/database"
	"fund-manager/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.Init(cfg.Logger, "fund-manager")
	log.Info("Starting fund manager service...")

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// Initialize database connection
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.NewMongoDB(connectCtx, cfg.Database)
	cancelConnect()
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	defer db.Disconnect()

	fundRepo := mongorepo.NewFundRepository(db.GetDatabase())

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
	}

	factory := messaging.NewDialFactory(
		cfg.RabbitMQ.AMQPURL(),
		cfg.RabbitMQ.Heartbeat,
		cfg.RabbitMQ.MaxReconnectAttempts,
		cfg.RabbitMQ.ReconnectDelay,
		log.WithField("component", "rabbitmq"),
	)
	defer factory.Close()

	options := listener.Options{
		Workers:        cfg.Worker.PoolSize,
		QueueSize:      cfg.Worker.QueueSize,
		ProcessTimeout: cfg.Worker.ProcessTimeout,
	}
	componentHost := host.NewComponentHost(
		factory,
		db,
		messaging.NewTopology(cfg.Topology.AppName),
		func(exchanges []*messaging.Exchange) []listener.Listener {
			return listener.NewDefaultListeners(factory, exchanges, fundRepo, options, log, metrics)
		},
		log,
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 60*time.Second)
	err = componentHost.Start(startCtx)
	cancelStart()
	if err != nil {
		componentHost.Close()
		log.Fatal("Failed to start listening components: ", err)
	}

	// Initialize schedulers
	var jobs *scheduler.Scheduler
	var probe *scheduler.QueueProbe
	if cfg.Scheduler.Enabled {
		jobs, err = scheduler.NewScheduler(cfg.Scheduler, log)
		if err != nil {
			log.Fatal("Failed to create scheduler: ", err)
		}

		topology := messaging.NewTopology(cfg.Topology.AppName)
		exchanges := append([]*messaging.Exchange{topology.DeadLetter()}, componentHost.Exchanges()...)
		probe = scheduler.NewQueueProbe(factory, exchanges, metrics, log)
		if err := jobs.Add(scheduler.QueueProbeJob, cfg.Scheduler.QueueProbeInterval, probe.Run); err != nil {
			log.Fatal("Failed to schedule queue probe: ", err)
		}
		jobs.Start()
	}

	// Setup HTTP server
	router := setupRouter(cfg, componentHost, db, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: ", err)
	}

	if jobs != nil {
		jobs.Stop()
		probe.Close()
	}

	if err := componentHost.Close(); err != nil {
		log.Error("Listening components did not stop cleanly: ", err)
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, componentHost *host.ComponentHost, db *database.MongoDB, log *logrus.Entry) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gateway.RequestID())
	router.Use(gateway.Logger(log))

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		health := "healthy"
		if !componentHost.Running() || !db.IsHealthy(c.Request.Context()) {
			status = http.StatusServiceUnavailable
			health = "degraded"
		}

		c.JSON(status, gin.H{
			"status":     health,
			"service":    "fund-manager",
			"components": componentHost.Status(),
			"timestamp":  time.Now().UTC(),
		})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	return router
}
