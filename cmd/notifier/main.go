package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-fresh-orders/internal/config"
	kafkax "github.com/ariefcatur/go-fresh-orders/internal/kafka"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/notify"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

const serviceName = "order-notifier"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	rdb, err := redisx.New(ctx, cfg.Redis)
	requireResource(ctx, logg, "redis", err)
	defer rdb.Close()

	var sink notify.Sink = notify.NewLogSink(logg)
	if cfg.SMTP.Enabled() {
		sink = notify.NewSMTPSink(cfg.SMTP)
	}
	dispatcher := notify.NewDispatcher(redisx.NewDedup(rdb, serviceName), sink, logg)

	topic := cfg.Kafka.OrderTopic
	if topic == "" {
		topic = orders.TopicOrderEvents
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"group":   cfg.Kafka.NotifierGroup,
		"topic":   topic,
		"workers": cfg.Kafka.NotifierWorkers,
		"smtp":    cfg.SMTP.Enabled(),
	})
	cons := kafkax.NewConsumer(cfg.Kafka.Brokers(), cfg.Kafka.NotifierGroup, topic, cfg.Kafka.NotifierWorkers, logg)

	logg.Info(ctx, "notifier consumer started")
	if err := cons.Start(ctx, dispatcher.Handle); err != nil {
		logg.Error(ctx, "consumer exit", err)
		os.Exit(1)
	}
	logg.Info(ctx, "notifier stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
