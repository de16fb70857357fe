package redisx

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	rdb     redis.Cmdable
	service string
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// FirstSeen marks eventID as processed and reports whether this call was the first.
func (d *Dedup) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, DedupKey(d.service, eventID), "1", TTLDedup).Result()
}

