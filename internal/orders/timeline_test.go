package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(min int) *time.Time {
	t := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(min) * time.Minute)
	return &t
}

func events(tl Timeline) []TimelineEvent {
	out := make([]TimelineEvent, 0, len(tl.Entries))
	for _, e := range tl.Entries {
		out = append(out, e.Event)
	}
	return out
}

func TestTimelinePendingHasPlaceholders(t *testing.T) {
	o := &Order{OrderNumber: "ORD-1", Status: StatusPending, Timestamps: Timestamps{CreatedAt: *at(0)}}

	tl := ProjectTimeline(o)

	assert.Equal(t, []TimelineEvent{EventCreated, EventConfirmed, EventShipped, EventDelivered}, events(tl))
	assert.True(t, tl.Entries[0].Completed)
	for _, e := range tl.Entries[1:] {
		assert.False(t, e.Completed)
		assert.Nil(t, e.Timestamp)
	}
	assert.Equal(t, "processing", tl.EstimatedDelivery)
}

func TestTimelineShippingOrder(t *testing.T) {
	o := &Order{
		Status:     StatusShipping,
		Timestamps: Timestamps{CreatedAt: *at(0), ConfirmedAt: at(5), ShippedAt: at(60)},
	}

	tl := ProjectTimeline(o)

	assert.Equal(t, []TimelineEvent{EventCreated, EventConfirmed, EventShipped, EventDelivered}, events(tl))
	assert.True(t, tl.Entries[2].Completed)
	assert.False(t, tl.Entries[3].Completed)
	assert.Equal(t, "in transit", tl.EstimatedDelivery)
}

func TestTimelineDeliveredHasNoPlaceholders(t *testing.T) {
	o := &Order{
		Status:     StatusDelivered,
		Timestamps: Timestamps{CreatedAt: *at(0), ConfirmedAt: at(5), ShippedAt: at(60), DeliveredAt: at(600)},
	}

	tl := ProjectTimeline(o)

	require.Len(t, tl.Entries, 4)
	for i, e := range tl.Entries {
		assert.True(t, e.Completed)
		if i > 0 {
			assert.False(t, e.Timestamp.Before(*tl.Entries[i-1].Timestamp))
		}
	}
}

func TestTimelineCancelledAfterConfirm(t *testing.T) {
	o := &Order{
		Status:     StatusCancelled,
		Note:       "leave at the gate\nconfirmed: phoned the customer\ncancelled: changed my mind",
		Timestamps: Timestamps{CreatedAt: *at(0), ConfirmedAt: at(5), CancelledAt: at(10)},
	}

	tl := ProjectTimeline(o)

	assert.Equal(t, []TimelineEvent{EventCreated, EventConfirmed, EventCancelled}, events(tl))
	assert.Equal(t, "changed my mind", tl.Entries[2].Description)
	assert.Equal(t, "cancelled", tl.EstimatedDelivery)
}

func TestTimelineCancelWithoutReason(t *testing.T) {
	o := &Order{
		Status:     StatusCancelled,
		Note:       "call before delivery",
		Timestamps: Timestamps{CreatedAt: *at(0), CancelledAt: at(3)},
	}

	tl := ProjectTimeline(o)

	require.Len(t, tl.Entries, 2)
	assert.Equal(t, "The order was cancelled", tl.Entries[1].Description)
}

func TestTimelineDoesNotMutate(t *testing.T) {
	o := &Order{Status: StatusPending, Timestamps: Timestamps{CreatedAt: *at(0)}}
	before := *o.Clone()

	tl := ProjectTimeline(o)
	*tl.Entries[0].Timestamp = time.Time{}

	assert.Equal(t, before, *o)
}
