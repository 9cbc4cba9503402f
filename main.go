package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-sync-service/config"
	"pos-sync-service/controllers"
	"pos-sync-service/database"
	"pos-sync-service/kafka"
	"pos-sync-service/repository"
	"pos-sync-service/routes"
	"pos-sync-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg := config.Load()

	// Snapshot store
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Redis connection failed", zap.Error(err))
	}
	snapshots := repository.NewRedisSnapshotRepository(redisClient)

	// Event egress (optional)
	var producer services.EventProducer
	var kafkaProducer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaProducer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		producer = kafkaProducer
		logger.Info("Kafka producer enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// Actors
	hub := services.NewNotificationHub(snapshots, services.NewSessionRegistry(logger), cfg.BufferCapacity, cfg.ActorIdleTTL, logger)
	ledger := services.NewInventoryLedger(snapshots, services.NewSessionRegistry(logger), cfg.ActorIdleTTL, logger)
	coordinator := services.NewTransactionCoordinator(snapshots, services.NewSessionRegistry(logger), producer, cfg.ActorIdleTTL, logger)

	hubController := controllers.NewHubController(hub, logger)
	inventoryController := controllers.NewInventoryController(ledger, logger)
	transactionController := controllers.NewTransactionController(coordinator, logger)

	// HTTP router
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	})

	routes.RegisterRoutes(r, hubController, inventoryController, transactionController)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		logger.Info("POS Sync Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down POS Sync Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	hub.Close()
	ledger.Close()
	coordinator.Close()
	if kafkaProducer != nil {
		kafkaProducer.Close()
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("Redis close failed", zap.Error(err))
	}

	logger.Info("POS Sync Service stopped gracefully")
}
