// Package cache stores rendered pages for reuse across requests.
package cache

import (
	"context"
	"time"
)

// Entry is a rendered page.
type Entry struct {
	Status      int
	ContentType string
	Body        []byte
	ExpiresAt   time.Time
}

// Expired reports whether the entry is past its expiry at now. Entries
// without an expiry never expire.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is a page cache. Get returns nil without error on a miss.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
