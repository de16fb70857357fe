package orders

import (
	"sort"
	"strings"
	"time"
)

type TimelineEvent string

const (
	EventCreated   TimelineEvent = "created"
	EventConfirmed TimelineEvent = "confirmed"
	EventShipped   TimelineEvent = "shipped"
	EventDelivered TimelineEvent = "delivered"
	EventCancelled TimelineEvent = "cancelled"
)

type TimelineEntry struct {
	Event       TimelineEvent `json:"event"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Timestamp   *time.Time    `json:"timestamp"`
	Completed   bool          `json:"completed"`
}

type Timeline struct {
	OrderNumber       string          `json:"order_number"`
	Status            Status          `json:"status"`
	EstimatedDelivery string          `json:"estimated_delivery"`
	Entries           []TimelineEntry `json:"timeline"`
}

var progressSteps = []struct {
	event       TimelineEvent
	title       string
	description string
	at          func(Timestamps) *time.Time
}{
	{EventConfirmed, "Order confirmed", "The seller confirmed the order and is preparing it", func(ts Timestamps) *time.Time { return ts.ConfirmedAt }},
	{EventShipped, "Out for delivery", "The order was handed to the carrier", func(ts Timestamps) *time.Time { return ts.ShippedAt }},
	{EventDelivered, "Delivered", "The order was delivered", func(ts Timestamps) *time.Time { return ts.DeliveredAt }},
}

// ProjectTimeline derives the customer-facing lifecycle view. It reads the order only.
func ProjectTimeline(o *Order) Timeline {
	created := o.Timestamps.CreatedAt
	reached := []TimelineEntry{{
		Event:       EventCreated,
		Title:       "Order placed",
		Description: "Order " + o.OrderNumber + " was placed",
		Timestamp:   &created,
		Completed:   true,
	}}
	var pending []TimelineEntry

	for _, step := range progressSteps {
		if at := step.at(o.Timestamps); at != nil {
			ts := *at
			reached = append(reached, TimelineEntry{
				Event:       step.event,
				Title:       step.title,
				Description: step.description,
				Timestamp:   &ts,
				Completed:   true,
			})
			continue
		}
		if !o.Status.Terminal() {
			pending = append(pending, TimelineEntry{Event: step.event, Title: step.title})
		}
	}

	if at := o.Timestamps.CancelledAt; at != nil {
		ts := *at
		desc := cancelReason(o.Note)
		if desc == "" {
			desc = "The order was cancelled"
		}
		reached = append(reached, TimelineEntry{
			Event:       EventCancelled,
			Title:       "Order cancelled",
			Description: desc,
			Timestamp:   &ts,
			Completed:   true,
		})
	}

	sort.SliceStable(reached, func(i, j int) bool {
		return reached[i].Timestamp.Before(*reached[j].Timestamp)
	})

	return Timeline{
		OrderNumber:       o.OrderNumber,
		Status:            o.Status,
		EstimatedDelivery: estimatedDelivery(o.Status),
		Entries:           append(reached, pending...),
	}
}

func estimatedDelivery(s Status) string {
	switch s {
	case StatusShipping:
		return "in transit"
	case StatusDelivered:
		return "delivered"
	case StatusCancelled:
		return "cancelled"
	}
	return "processing"
}

// cancelReason picks the last "cancelled: ..." line out of the order note. The rest of
// the note is the checkout note and earlier status reasons.
func cancelReason(note string) string {
	prefix := string(StatusCancelled) + ": "
	lines := strings.Split(note, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if reason, ok := strings.CutPrefix(lines[i], prefix); ok {
			return strings.TrimSpace(reason)
		}
	}
	return ""
}
