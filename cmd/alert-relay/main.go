package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/broker/kafka"
	"github.com/BearBump/ReturnBox/internal/cache"
	"github.com/BearBump/ReturnBox/internal/cache/memcache"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/services/notify"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	brokers := cfg.Kafka.Brokers()
	if len(brokers) == 0 {
		panic("kafka.host is required for alert-relay")
	}
	topic := cfg.Kafka.AlertsTopicName
	if topic == "" {
		topic = "returnbox.alerts"
	}
	group := cfg.Kafka.ConsumerGroup
	if group == "" {
		group = "alert-relay"
	}

	consumer := kafka.NewConsumer(brokers, topic, group)
	defer func() { _ = consumer.Close() }()

	var seen cache.BytesCache = memcache.New()
	if addr := cfg.Redis.Addr(); addr != "" {
		rc := rediscache.New(addr)
		defer func() { _ = rc.Close() }()
		seen = rc
	}

	r := &relay{consumer: consumer, deliverer: notify.LogDeliverer{}, seen: seen}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("alert-relay started", "topic", topic, "group", group)
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("alert-relay stopped", "error", err.Error())
		os.Exit(1)
	}
}
