package notify

import (
	"context"
	"encoding/json"

	kafkax "github.com/ariefcatur/go-fresh-orders/internal/kafka"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/segmentio/kafka-go"
)

type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

// Dispatcher turns order events into customer notifications. Delivery is best effort:
// only a dedup store failure keeps a message uncommitted.
type Dispatcher struct {
	dedup Deduper
	sink  Sink
	log   *logger.Logger
}

func NewDispatcher(dedup Deduper, sink Sink, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{dedup: dedup, sink: sink, log: log}
}

// Handle is a kafka.Handler.
func (d *Dispatcher) Handle(ctx context.Context, m kafka.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		d.log.Warn(ctx, "notify.envelope.invalid", err)
		return nil
	}
	ctx = d.log.WithFields(ctx, map[string]any{
		"event_id":   env.EventID,
		"event_type": env.EventType,
		"order_id":   env.CorrelationID,
	})

	msg, ok, err := render(env)
	if err != nil {
		d.log.Warn(ctx, "notify.payload.invalid", err)
		return nil
	}
	if !ok {
		return nil
	}

	first, err := d.dedup.FirstSeen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		d.log.Debug(ctx, "notify.duplicate")
		return nil
	}

	if err := d.sink.Send(ctx, msg); err != nil {
		d.log.Warn(ctx, "notify.send.failed", err)
	}
	return nil
}

func render(env orders.Envelope) (Message, bool, error) {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		return createdMessage(p), true, nil
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		return statusMessage(p), true, nil
	}
	return Message{}, false, nil
}
