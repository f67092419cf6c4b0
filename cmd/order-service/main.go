package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-lectures/internal/auth"
	"ms-lectures/internal/config"
	"ms-lectures/internal/health"
	"ms-lectures/internal/kafka"
	"ms-lectures/internal/ledger"
	"ms-lectures/internal/logger"
	"ms-lectures/internal/order"
	"ms-lectures/internal/order/api"
	"ms-lectures/internal/payments"
	"ms-lectures/internal/reconcile"
	"ms-lectures/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	// --- PostgreSQL ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", "Failed to connect to Postgres: "+err.Error())
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	if err := ledger.Migrate(ctx, bunDB); err != nil {
		log.Fatal("DATABASE", "Migration failed: "+err.Error())
	}

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", "Failed to connect to Redis: "+err.Error())
	}

	// --- Stripe ---
	stripeClient, err := payments.NewClient(cfg.Stripe.SecretKey, log)
	if err != nil {
		log.Fatal("STRIPE", "Failed to initialize Stripe client: "+err.Error())
	}

	// --- Kafka ---
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
	} else {
		log.Warn("KAFKA", "Event streaming disabled")
	}

	// --- Components ---
	ledgerDB := ledger.New(bunDB, log)
	sequencer := &ledger.RedisSequencer{Client: redisClient}
	reconciler := reconcile.New(ledgerDB, log)

	var events order.EventPublisher
	var paymentEvents webhook.EventPublisher
	if producer != nil {
		events = producer
		paymentEvents = producer
	}

	service := order.NewService(ledgerDB, sequencer, stripeClient, events, log, sanctuaryBase())
	orderHandler := api.NewHandler(service, reconciler, log)

	ingestor := webhook.NewIngestor(ledgerDB, paymentEvents, cfg.Stripe.WebhookSecret, log)
	webhookHandler := webhook.NewHandler(ingestor, log)

	probes := []health.Probe{
		health.DatabaseProbe(bunDB, cfg.Health.DatabaseTimeout),
		health.RedisProbe(redisClient, cfg.Health.RedisTimeout),
		health.PaymentProviderProbe(stripeClient, cfg.Health.StripeTimeout),
		health.MemoryProbe(500*time.Millisecond, cfg.Health.MemoryWarnPercent, cfg.Health.MemoryCritPercent),
	}
	aggregator := health.NewAggregator(probes, cfg.Health.GlobalTimeout, log)
	healthHandler := health.NewHandler(aggregator, cfg.IsProduction(), log)

	// --- Router ---
	r := chi.NewRouter()

	r.Get("/orders/{key}", orderHandler.GetOrder)
	r.Post("/payments/webhook", webhookHandler.HandleWebhook)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/ready/verbose", healthHandler.ReadyVerbose)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", orderHandler.CreateCheckout)
		r.Post("/orders", orderHandler.SubmitOrder)

		if cfg.Auth.Issuer != "" {
			r.Route("/expert", func(r chi.Router) {
				r.Use(auth.Middleware(cfg.Auth.Issuer))
				r.Use(auth.RequireRole(cfg.Auth.ExpertRole))
				r.Post("/orders/{orderId}/review", orderHandler.SubmitReview)
				r.Post("/orders/{orderId}/validate", orderHandler.ValidateOrder)
			})
		} else {
			log.Warn("AUTH", "OIDC issuer not configured, expert routes disabled")
		}
	})

	// --- HTTP server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", "Order service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "HTTP server error: "+err.Error())
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received, cleaning up")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", "Server forced to shutdown: "+err.Error())
	}

	log.Info("SERVER", "Server exited gracefully")
}

func sanctuaryBase() string {
	if base := os.Getenv("SANCTUARY_BASE_URL"); base != "" {
		return base
	}
	return "https://app.lectures-lumina.com"
}
