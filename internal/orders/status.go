package orders

import "github.com/ariefcatur/go-fresh-orders/internal/apperr"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipping  Status = "shipping"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusShipping, StatusDelivered, StatusCancelled}

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipping: true, StatusCancelled: true},
	StatusShipping:  {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// TimestampField names the lifecycle timestamp a transition stamps.
type TimestampField string

const (
	StampConfirmed TimestampField = "confirmed_at"
	StampShipped   TimestampField = "shipped_at"
	StampDelivered TimestampField = "delivered_at"
	StampCancelled TimestampField = "cancelled_at"
)

// Effects is the side-effect set a transition requires. Callers apply it as a whole.
type Effects struct {
	Stamp        TimestampField
	MarkPaid     bool
	ReleaseStock bool
}

type Transition struct {
	From    Status
	To      Status
	Effects Effects
}

var entryStamp = map[Status]TimestampField{
	StatusConfirmed: StampConfirmed,
	StatusShipping:  StampShipped,
	StatusDelivered: StampDelivered,
	StatusCancelled: StampCancelled,
}

// Plan validates from -> to and returns the side effects entering `to` requires.
// stockReleased guards the cancellation restock against running twice.
func Plan(from, to Status, stockReleased bool) (Transition, error) {
	if !to.Valid() {
		return Transition{}, apperr.Newf(apperr.CodeValidation, "unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return Transition{}, invalidTransition(from, to)
	}
	t := Transition{From: from, To: to, Effects: Effects{Stamp: entryStamp[to]}}
	switch to {
	case StatusDelivered:
		t.Effects.MarkPaid = true
	case StatusCancelled:
		t.Effects.ReleaseStock = !stockReleased
	}
	return t, nil
}

func invalidTransition(from, to Status) error {
	msg := "cannot transition from " + string(from) + " to " + string(to)
	switch {
	case from == to:
		msg = "order is already " + string(from)
	case from.Terminal():
		msg = "order is " + string(from) + " and can no longer change"
	}
	return apperr.New(apperr.CodeInvalidTransition, msg).WithDetails(map[string]any{
		"from": from,
		"to":   to,
	})
}
