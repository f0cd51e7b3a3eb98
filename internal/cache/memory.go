package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Store backed by go-cache. Expired entries are
// swept every interval until Close is called.
type Memory struct {
	items *gocache.Cache

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store that sweeps expired entries every
// interval. A non-positive interval disables sweeping; expired entries
// are then only hidden from Get.
func NewMemory(interval time.Duration) *Memory {
	// go-cache's own janitor only stops on finalization, so sweeping is
	// driven here where Close can end it.
	m := &Memory{
		items: gocache.New(gocache.NoExpiration, 0),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if interval <= 0 {
		close(m.done)
		return m
	}
	go m.janitor(interval)
	return m
}

func (m *Memory) janitor(interval time.Duration) {
	defer close(m.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.items.DeleteExpired()
		}
	}
}

// Get returns a copy of the entry stored under key.
func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, nil
	}
	e := v.(Entry)
	if e.Expired(time.Now()) {
		return nil, nil
	}
	e.Body = append([]byte(nil), e.Body...)
	return &e, nil
}

// Put stores e under key for ttl. A non-positive ttl keeps it forever.
func (m *Memory) Put(_ context.Context, key string, e Entry, ttl time.Duration) error {
	e.Body = append([]byte(nil), e.Body...)
	e.ExpiresAt = expiry(ttl)
	d := gocache.NoExpiration
	if ttl > 0 {
		d = ttl
	}
	m.items.Set(key, e, d)
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// Close stops sweeping.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	<-m.done
	return nil
}
