package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/auth"
	"github.com/ariefcatur/go-fresh-orders/internal/config"
	"github.com/ariefcatur/go-fresh-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-fresh-orders/internal/kafka"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/memstore"
	"github.com/ariefcatur/go-fresh-orders/internal/metrics"
	"github.com/ariefcatur/go-fresh-orders/internal/notify"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/postgres"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
	"github.com/ariefcatur/go-fresh-orders/internal/seed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: "order-api"})
	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: cfg.App.ServiceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"store": cfg.Store.Driver, "addr": cfg.App.HTTPAddr})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(reg)

	// Store
	var (
		store   orders.Store
		catalog orders.Catalog
	)
	switch cfg.Store.Driver {
	case "memory":
		mem := memstore.New()
		for _, p := range seed.Products() {
			mem.PutProduct(p)
		}
		store, catalog = mem, mem
		logg.Warn(ctx, "running on the in-memory store; orders are lost on restart", nil)
	default:
		pool, err := postgres.Connect(ctx, cfg.Postgres)
		requireResource(ctx, logg, "postgres", err)
		defer pool.Close()
		pg := postgres.NewStore(pool)
		store, catalog = pg, pg
	}

	// Redis idempotency is optional; checkout still works without it.
	var idem httpx.IdempotencyStore
	if rdb, err := redisx.New(ctx, cfg.Redis); err != nil {
		logg.Warn(ctx, "redis unavailable, idempotency keys disabled", err)
	} else {
		defer rdb.Close()
		idem = redisx.NewIdempotency(rdb)
	}

	// Kafka producer
	topic := cfg.Kafka.OrderTopic
	if topic == "" {
		topic = orders.TopicOrderEvents
	}
	// The producer outlives the signal: requests drained by Shutdown still publish.
	prodCtx, stopProducer := context.WithCancel(context.Background())
	defer stopProducer()
	prod := kafkax.NewProducer(cfg.Kafka.Brokers(), topic, cfg.Kafka.ProducerBuffer, logg)
	prod.Start(prodCtx)

	tokens, err := auth.NewJWTService(cfg.Auth)
	requireResource(ctx, logg, "jwt", err)

	flatFee := cfg.Orders.FlatFee()
	svc, err := orders.NewService(orders.ServiceDeps{
		Store:               store,
		Catalog:             catalog,
		Notifier:            notify.NewGateway(prod, cfg.App.ServiceName),
		Shipping:            orders.FlatShipping{Fee: flatFee},
		FallbackShippingFee: flatFee,
		Precision:           cfg.Orders.CurrencyPrecision,
		Logger:              logg,
		Metrics:             orderMetrics,
	})
	requireResource(ctx, logg, "order service", err)

	router := httpx.NewRouter(httpx.RouterDeps{
		Orders:      svc,
		Tokens:      tokens,
		Idempotency: idem,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:      logg,
		Timeout:     cfg.App.RequestTimeout,
	})
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logg.Info(ctx, "http.listening")
	if err := serve(ctx, srv, prod, 10*time.Second); err != nil {
		logg.Error(ctx, "http.server.failed", err)
	}
	logg.Info(ctx, "shutdown complete")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
