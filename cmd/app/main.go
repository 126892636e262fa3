package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/oderahub/eventhash/pkg/audit"
	"github.com/oderahub/eventhash/pkg/config"
	"github.com/oderahub/eventhash/pkg/handlers"
	"github.com/oderahub/eventhash/pkg/issuer"
	"github.com/oderahub/eventhash/pkg/ledger"
	"github.com/oderahub/eventhash/pkg/middleware"
	"github.com/oderahub/eventhash/pkg/mirror"
	"github.com/oderahub/eventhash/pkg/payments"
	"github.com/oderahub/eventhash/pkg/ratelimit"
	"github.com/oderahub/eventhash/pkg/reconcile"
	"github.com/oderahub/eventhash/pkg/registry"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// AWS Session
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	dbClient := dynamodb.NewFromConfig(awsCfg)

	// Hedera operator client, shared by minting, transfers, and the audit
	// topic.
	hederaClient, err := ledger.NewHederaClient(cfg.HederaNetwork, cfg.HederaAccountID, cfg.HederaPrivateKey)
	if err != nil {
		log.Fatalf("unable to create Hedera client: %v", err)
	}
	defer hederaClient.Close()

	var reconciler reconcile.Enqueuer
	if cfg.ReconcileQueueURL != "" {
		reconciler = reconcile.NewSQSEnqueuer(sqs.NewFromConfig(awsCfg), cfg.ReconcileQueueURL)
	} else {
		logger.Warn("SQS_RECONCILE_QUEUE_URL not set; stranded issuances will only be logged")
	}

	store := registry.NewDynamoDBStore(dbClient, cfg.EventsTableName)
	guard := payments.NewDynamoDBGuard(dbClient, cfg.PaymentsTableName)
	mirrorClient := mirror.NewClient(cfg.HederaMirrorURL)
	emitter := audit.NewLedgerEmitter(hederaClient)

	tickets := issuer.NewService(mirrorClient, guard, hederaClient, emitter, reconciler, hederaClient.OperatorAccountID())
	handler := handlers.NewApiHandler(store, tickets)

	var limiter *ratelimit.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		limiter = ratelimit.NewLimiter(redis.NewClient(opts), "eventhash:rate_limit", cfg.RateLimitPerMin, cfg.RateLimitWindow)
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.NewStructuredLogger(logger))

	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, "api"))
		}
		r.Mount("/api/events", handler.Routes())
	})

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort, "network", cfg.HederaNetwork)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Block until a signal, then drain in-flight issuances before exit.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}
}
