package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/rentflow/internal/config"
	"github.com/joao-fontenele/rentflow/internal/idempotency"
	"github.com/joao-fontenele/rentflow/internal/inventory"
	"github.com/joao-fontenele/rentflow/internal/memstore"
	"github.com/joao-fontenele/rentflow/internal/messaging"
	"github.com/joao-fontenele/rentflow/internal/orders"
	"github.com/joao-fontenele/rentflow/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8081")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	mux := http.NewServeMux()

	var (
		repo    orders.Repository
		catalog inventory.Catalog
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := memstore.New(memstore.DemoProducts()...)
		repo, catalog = store, store
		inventory.NewHandler(store, logger).Register(mux)
		logger.Info("using in-memory store; inventory routes mounted on the orders service")
	default:
		if err := cfg.Require("POSTGRES_URL"); err != nil {
			logger.Error("invalid config", "error", err)
			os.Exit(1)
		}
		dsn, err := telemetry.WithSearchPath(cfg.PostgresURL, cfg.PostgresSchema)
		if err != nil {
			logger.Error("invalid POSTGRES_URL", "error", err)
			os.Exit(1)
		}
		db, err := telemetry.OpenDB("postgres", dsn)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)

		if err := db.PingContext(ctx); err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		repo = orders.NewOrderRepository(db)
		catalog = inventory.NewProductRepository(db)
	}

	var publisher orders.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.LifecycleTopic)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set; lifecycle events will not be published")
	}

	var idem orders.IdempotencyStore
	if cfg.RedisURL != "" {
		client, err := idempotency.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		idem = idempotency.NewStore(client)
	}

	lifecycle, err := orders.NewLifecycle(repo, logger, orders.WithPublisher(publisher))
	if err != nil {
		logger.Error("failed to create lifecycle", "error", err)
		os.Exit(1)
	}
	checkout := orders.NewCheckout(repo, catalog, inventory.NewGuard(catalog), publisher, logger)

	handler, err := orders.NewHandler(repo, lifecycle, checkout, idem, logger)
	if err != nil {
		logger.Error("failed to create handler", "error", err)
		os.Exit(1)
	}
	handler.Register(mux)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.InstrumentMux(mux, "orders"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
