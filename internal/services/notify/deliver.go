package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// BrokerDeliverer publishes alerts to a topic consumed by the delivery side.
type BrokerDeliverer struct {
	producer Producer
	topic    string
	maxTries uint
	initial  time.Duration
}

func NewBrokerDeliverer(p Producer, topic string) *BrokerDeliverer {
	if topic == "" {
		topic = "returnbox.alerts"
	}
	return &BrokerDeliverer{producer: p, topic: topic, maxTries: 5, initial: 150 * time.Millisecond}
}

func (b *BrokerDeliverer) Deliver(ctx context.Context, a messages.Alert) error {
	value, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshal alert")
	}
	key := []byte(a.Type)
	if a.ID != "" {
		key = []byte(a.ID)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.initial
	// брокер может быть ещё не готов сразу после старта
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, b.producer.Publish(ctx, b.topic, key, value)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(b.maxTries))
	if err != nil {
		return errors.Wrap(err, "publish alert")
	}
	return nil
}

// LogDeliverer writes alerts to the structured log. Used when no broker is configured.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, a messages.Alert) error {
	slog.Info("alert", "id", a.ID, "type", a.Type, "title", a.Title, "subtitle", a.Subtitle, "body", a.Body)
	return nil
}
