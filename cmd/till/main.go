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

	"till-service/config"
	"till-service/internal/api"
	"till-service/internal/broker"
	"till-service/internal/redisclient"
	"till-service/internal/service"
	"till-service/internal/session"
	"till-service/internal/store"
	"till-service/internal/txclient"
	"till-service/internal/util"
	"till-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sessionStore persists both the session token and the cart snapshot
type sessionStore interface {
	session.Store
	service.CartStore
}

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Session.TillID); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting till service",
		zap.String("backend", cfg.Backend.URL),
		zap.String("currency", cfg.Session.Currency.String()))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer(cfg.Session.TillID, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	checks := map[string]func(context.Context) error{}

	var sessions sessionStore = session.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.TTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		sessions = redisClient
		checks["redis"] = redisClient.Ping
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("REDIS_ADDR not set, session is kept in memory only")
	}

	var events service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTill)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicTill))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var journal api.SalesJournal
	var journalWorker *worker.JournalWorker
	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		journal = db
		checks["database"] = db.Ping
		logger.Info("Database connected")

		if len(cfg.Kafka.Brokers) > 0 {
			consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTill, cfg.Kafka.ConsumerGroup)
			journalWorker = worker.NewJournalWorker(consumer, db)
			go func() {
				if err := journalWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
					logger.Error("Journal worker error", zap.Error(err))
				}
			}()
		}
	}

	client := txclient.NewClient(cfg.Backend.URL, cfg.Backend.RequestTimeout)
	provider := session.NewProvider(cfg.Session.TillID, sessions)
	till := service.NewTillService(client, provider, service.Options{
		TillID:         cfg.Session.TillID,
		RequestTimeout: cfg.Backend.RequestTimeout,
		Carts:          sessions,
		Events:         events,
	})

	if err := till.Init(context.Background()); err != nil {
		logger.Warn("Till started without a catalog", zap.Error(err))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(till, api.Options{
		TillID:   cfg.Session.TillID,
		Currency: cfg.Session.Currency,
		Journal:  journal,
		Checks:   checks,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if journalWorker != nil {
		journalWorker.Stop()
	}

	logger.Info("Server exited")
}
