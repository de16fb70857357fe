package orders

import (
	"testing"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanLegalTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     Effects
	}{
		{StatusPending, StatusConfirmed, Effects{Stamp: StampConfirmed}},
		{StatusConfirmed, StatusShipping, Effects{Stamp: StampShipped}},
		{StatusShipping, StatusDelivered, Effects{Stamp: StampDelivered, MarkPaid: true}},
		{StatusPending, StatusCancelled, Effects{Stamp: StampCancelled, ReleaseStock: true}},
		{StatusConfirmed, StatusCancelled, Effects{Stamp: StampCancelled, ReleaseStock: true}},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			tr, err := Plan(tc.from, tc.to, false)
			require.NoError(t, err)
			assert.Equal(t, tc.from, tr.From)
			assert.Equal(t, tc.to, tr.To)
			assert.Equal(t, tc.want, tr.Effects)
		})
	}
}

func TestPlanCancelSkipsReleaseWhenAlreadyReleased(t *testing.T) {
	tr, err := Plan(StatusPending, StatusCancelled, true)
	require.NoError(t, err)
	assert.False(t, tr.Effects.ReleaseStock)
}

func TestPlanRejectsEverythingElse(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			if CanTransition(from, to) {
				continue
			}
			_, err := Plan(from, to, false)
			assert.Truef(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "%s -> %s: %v", from, to, err)
		}
	}
}

func TestPlanTerminalStatesHaveNoExit(t *testing.T) {
	for _, terminal := range []Status{StatusDelivered, StatusCancelled} {
		assert.True(t, terminal.Terminal())
		for _, to := range AllStatuses {
			_, err := Plan(terminal, to, false)
			assert.Error(t, err)
		}
	}
}

func TestPlanSkippingAndNoOp(t *testing.T) {
	_, err := Plan(StatusPending, StatusShipping, false)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))

	_, err = Plan(StatusPending, StatusDelivered, false)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))

	_, err = Plan(StatusConfirmed, StatusConfirmed, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already confirmed")

	_, err = Plan(StatusShipping, StatusCancelled, false)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))
}

func TestPlanUnknownTarget(t *testing.T) {
	_, err := Plan(StatusPending, Status("lost"), false)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}
