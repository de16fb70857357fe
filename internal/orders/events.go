package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

const TopicOrderEvents = "order.events"

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// Event is what the lifecycle manager hands to the Notifier after a commit.
type Event struct {
	Type       string
	OrderID    string
	OccurredAt time.Time
	Payload    any
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Customer      Customer        `json:"customer"`
	Items         []LineItem      `json:"items"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

type OrderStatusChangedPayload struct {
	OrderID        string        `json:"order_id"`
	OrderNumber    string        `json:"order_number"`
	Customer       Customer      `json:"customer"`
	PreviousStatus Status        `json:"previous_status"`
	CurrentStatus  Status        `json:"current_status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	ActorRole      Role          `json:"actor_role"`
	Reason         string        `json:"reason,omitempty"`
	StockReleased  bool          `json:"stock_released,omitempty"`
}

func createdEvent(o *Order) Event {
	return Event{
		Type:       EventOrderCreated,
		OrderID:    o.ID,
		OccurredAt: o.Timestamps.CreatedAt,
		Payload: OrderCreatedPayload{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			Customer:      o.Customer,
			Items:         o.Items,
			FinalAmount:   o.Totals.FinalAmount,
			PaymentMethod: o.PaymentMethod,
		},
	}
}

func statusChangedEvent(o *Order, prev Status, actor Actor, reason string, released bool) Event {
	return Event{
		Type:       EventOrderStatusChanged,
		OrderID:    o.ID,
		OccurredAt: o.UpdatedAt,
		Payload: OrderStatusChangedPayload{
			OrderID:        o.ID,
			OrderNumber:    o.OrderNumber,
			Customer:       o.Customer,
			PreviousStatus: prev,
			CurrentStatus:  o.Status,
			PaymentStatus:  o.PaymentStatus,
			ActorRole:      actor.Role,
			Reason:         reason,
			StockReleased:  released,
		},
	}
}
