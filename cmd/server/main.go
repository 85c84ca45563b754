package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tour-inventory/config"
	"tour-inventory/internal/api"
	"tour-inventory/internal/broker"
	"tour-inventory/internal/clock"
	"tour-inventory/internal/redisclient"
	"tour-inventory/internal/service"
	"tour-inventory/internal/store"
	"tour-inventory/internal/util"
	"tour-inventory/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "tour-inventory"

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting tour inventory service")

	tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(context.Background())
		if err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Info("Migrations applied", zap.Strings("applied", applied))
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	slotCache := redisclient.NewSlotCache(redisClient, cfg.Business.AvailabilityCacheTTL())

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicInventory)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	clk := clock.NewSystem()
	reservationManager := service.NewReservationManager(db, clk,
		service.WithHoldTTL(cfg.Business.HoldTTL()),
		service.WithSweepBatchSize(cfg.Business.SweepBatchSize),
		service.WithReservationEvents(eventPublisher),
		service.WithReservationCache(slotCache),
	)
	pricingResolver := service.NewPricingResolver(db, clk)
	availabilityService := service.NewAvailabilityService(db, pricingResolver, slotCache, clk, cfg.Business.MaxBulkRangeDays)
	bulkEditor := service.NewBulkEditor(db, eventPublisher, slotCache, clk, cfg.Business.MaxBulkRangeDays)
	pricingRules := service.NewPricingRuleService(db, clk)
	paymentHandler := service.NewPaymentEventHandler(db, reservationManager)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	sweepWorker := worker.NewSweepWorker(reservationManager, redisClient, clk, &worker.SweepWorkerConfig{
		Interval: cfg.Business.SweepInterval(),
		LockTTL:  2 * cfg.Business.SweepInterval(),
	})
	if err := sweepWorker.Start(workerCtx); err != nil {
		log.Fatalf("Failed to start sweep worker: %v", err)
	}

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentWorker(paymentConsumer, paymentHandler)
	go func() {
		if err := paymentWorker.Start(workerCtx); err != nil {
			log.Printf("Payment worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ready := func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := redisClient.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	router := gin.New()
	handler := api.NewHandler(reservationManager, availabilityService, bulkEditor, pricingRules, sweepWorker, ready)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	sweepWorker.Stop()
	if err := paymentWorker.Stop(); err != nil {
		log.Printf("Error stopping payment worker: %v", err)
	}

	log.Println("Server exited")
}
