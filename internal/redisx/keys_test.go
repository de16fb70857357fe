package redisx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "idem:order:create:cust-1:abc", IdemOrderCreateKey("cust-1", "abc"))
	assert.Equal(t, "idem:order:create:guest:abc", IdemOrderCreateKey("", "abc"))
	assert.Equal(t, "dedup:notifier:evt-9", DedupKey("notifier", "evt-9"))
	assert.Less(t, TTLInFlight, TTLIdempotency)
}

func TestResolveClaim(t *testing.T) {
	stored := encodeClaim("fp-a", "order-1")

	id, claimed, err := resolveClaim(stored, "fp-a")
	assert.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-1", id)

	_, _, err = resolveClaim(stored, "fp-b")
	assert.ErrorIs(t, err, ErrKeyReused)

	_, _, err = resolveClaim(encodeClaim("fp-a", inFlight), "fp-a")
	assert.ErrorIs(t, err, ErrInFlight)

	_, _, err = resolveClaim(encodeClaim("fp-a", inFlight), "fp-b")
	assert.ErrorIs(t, err, ErrKeyReused)

	// values written before fingerprints existed never replay
	_, _, err = resolveClaim("order-1", "fp-a")
	assert.ErrorIs(t, err, ErrKeyReused)
}
