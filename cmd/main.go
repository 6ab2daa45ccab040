package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/audit"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/catalog"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/config"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/db"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/events"
	httpapi "github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/http"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/inventory"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/matching"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/metrics"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/reservation"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/sequence"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/webhook"
)

type eventPublisher interface {
	inventory.FlightEvents
	reservation.ReservationEvents
	Close() error
}

func main() {
	cfg := config.Load()
	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(cfg.MetricsNamespace, prometheus.DefaultRegisterer)

	// --- DB ---
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("db connect", "error", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, log); err != nil {
			log.Fatal("db migrate", "error", err)
		}
	}

	gormDB, err := db.NewGorm(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("catalog connect", "error", err)
	}
	flights := catalog.NewGormRepository(gormDB)

	// --- audit ---
	var sink audit.Sink = audit.NewPostgresSink(pool)
	if cfg.AuditSink == config.AuditSinkMongo {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("mongo connect", "error", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		sink = audit.NewMongoSink(client.Database(cfg.MongoDatabase))
	}
	recorder := audit.NewLogger(sink, log, m)

	// --- upstream ---
	up, err := upstream.NewClient(upstream.Options{
		BaseURL:      cfg.UpstreamBaseURL,
		APIKey:       cfg.UpstreamAPIKey,
		ClientID:     cfg.UpstreamClientID,
		ClientSecret: cfg.UpstreamClientSecret,
		TokenURL:     cfg.UpstreamTokenURL,
		Timeout:      cfg.UpstreamFetchTimeout,
	}, log, m)
	if err != nil {
		log.Fatal("upstream client", "error", err)
	}

	// --- AMQP ---
	var publisher eventPublisher = events.NopPublisher{}
	if cfg.RabbitURL != "" {
		conn, err := events.DialRabbit(cfg.RabbitURL)
		if err != nil {
			log.Fatal("rabbitmq", "error", err)
		}
		defer conn.Close()

		p, err := events.NewPublisher(conn, sequence.NewRepository(pool), events.PublisherOptions{
			PublishEnveloped: cfg.PublishEnveloped,
		})
		if err != nil {
			log.Fatal("events publisher", "error", err)
		}
		publisher = p
	} else {
		log.Warn("RABBITMQ_URL not set, domain events disabled")
	}
	defer publisher.Close()

	// --- reconciliation ---
	ledger := inventory.NewLedger(pool)
	reservations := reservation.NewRepository(pool)
	cascade := inventory.NewCascade(flights, up, recorder, publisher, m, log, cfg.UpstreamDeactivateTimeout)
	matcher := matching.NewMatcher(matching.DefaultStrategies(flights), log)

	svc := reservation.NewService(reservation.Deps{
		Store:                 reservations,
		UnitOfWork:            reservation.NewPgxUnitOfWork(pool, reservations, ledger),
		Matcher:               matcher,
		Cascade:               cascade,
		Prices:                up,
		Events:                publisher,
		Audit:                 recorder,
		Metrics:               m,
		Logger:                log,
		PriceTolerancePercent: cfg.PriceTolerancePercent,
		PriceCheckTimeout:     cfg.UpstreamFetchTimeout,
	})

	if cfg.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET not set, every webhook will be rejected")
	}
	processor := webhook.NewProcessor(
		webhook.NewNormalizer(cfg.WebhookSecret, up, cfg.UpstreamFetchTimeout, log),
		webhook.NewFilter(cfg.ManagedSupplierIDs, flights, log),
		svc,
		recorder,
		m,
		log,
	)

	// --- HTTP ---
	h := httpapi.NewHandler(processor, ledger, reservations, cfg.WebhookSecretHeader, log)
	r := httpapi.NewRouter(h)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("http server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = httpServer.Shutdown(shutdownCtx)
	cancel()

	log.Info("shutdown complete")
}
