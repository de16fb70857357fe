package redisx

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const inFlight = "pending"

var (
	// ErrInFlight means another request holds the key and has not finished yet.
	ErrInFlight = errors.New("idempotency key is in flight")
	// ErrKeyReused means the key was first used with a different request body.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
)

// Idempotency guards checkout replays with SET NX claims. Each value carries the
// fingerprint of the request that claimed it, so a key only replays for the same body.
type Idempotency struct {
	rdb redis.Cmdable
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Claim reserves key for the caller. When the key already completed for the same
// fingerprint it returns the stored order id and claimed=false. A key still being
// processed yields ErrInFlight; a key claimed by a different body yields ErrKeyReused.
func (i *Idempotency) Claim(ctx context.Context, key, fingerprint string) (orderID string, claimed bool, err error) {
	ok, err := i.rdb.SetNX(ctx, key, encodeClaim(fingerprint, inFlight), TTLInFlight).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := i.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET; treat as still contended
		return "", false, ErrInFlight
	case err != nil:
		return "", false, err
	}
	return resolveClaim(v, fingerprint)
}

func (i *Idempotency) Complete(ctx context.Context, key, fingerprint, orderID string) error {
	return i.rdb.Set(ctx, key, encodeClaim(fingerprint, orderID), TTLIdempotency).Err()
}

// Release drops a claim after a failed checkout so the client can retry.
func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.rdb.Del(ctx, key).Err()
}

func encodeClaim(fingerprint, state string) string {
	return fingerprint + "|" + state
}

// resolveClaim decides what a stored claim value means for a request with fingerprint.
func resolveClaim(stored, fingerprint string) (orderID string, claimed bool, err error) {
	fp, state, ok := strings.Cut(stored, "|")
	if !ok || fp != fingerprint {
		return "", false, ErrKeyReused
	}
	if state == inFlight {
		return "", false, ErrInFlight
	}
	return state, false, nil
}
