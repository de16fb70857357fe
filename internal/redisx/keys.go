package redisx

import (
	"fmt"
	"time"
)

const (
	// idem:order:create:{customer or "guest"}:{idempotency key} -> "{fingerprint}|{order id}", or "{fingerprint}|pending" while in flight
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// dedup:{service}:{event id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	// TTLInFlight bounds how long a crashed checkout keeps its key claimed.
	TTLInFlight = time.Minute
	TTLDedup    = 48 * time.Hour
)

func IdemOrderCreateKey(scope, key string) string {
	if scope == "" {
		scope = "guest"
	}
	return fmt.Sprintf(KeyIdemOrderCreate, scope, key)
}

func DedupKey(service, eventID string) string {
	return fmt.Sprintf(KeyDedup, service, eventID)
}
