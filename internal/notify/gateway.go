package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-fresh-orders/internal/kafka"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const envelopeVersion = 1

type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// Gateway wraps order events in the envelope and hands them to the producer.
// It implements orders.Notifier.
type Gateway struct {
	pub      Publisher
	producer string
	newID    func() string
}

func NewGateway(pub Publisher, producer string) *Gateway {
	return &Gateway{pub: pub, producer: producer, newID: uuid.NewString}
}

func (g *Gateway) Publish(ctx context.Context, ev orders.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}
	env := orders.Envelope{
		EventID:       g.newID(),
		EventType:     ev.Type,
		EventVersion:  envelopeVersion,
		OccurredAt:    ev.OccurredAt.UTC(),
		Producer:      g.producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: ev.OrderID,
		Payload:       payload,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return g.pub.Publish(orders.PartitionKey(ev.OrderID), b, kafkax.EventHeaders(ev.Type, envelopeVersion)...)
}
