package eventloop

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cryguy/fastboot/internal/core"
)

// FetchResult holds the pre-serialized outcome of an in-flight HTTP fetch.
// The fetch goroutine reads the response body, serializes headers, and encodes
// the body as base64 before completing, so the loop only passes strings to JS.
type FetchResult struct {
	Status      int
	StatusText  string
	HeadersJSON string
	BodyB64     string
	Redirected  bool
	FinalURL    string
	Err         error
}

type completedFetch struct {
	id     string
	result FetchResult
}

// timerEntry represents a pending setTimeout or setInterval callback.
// The actual callback is stored in globalThis.__timerCallbacks[id] on the
// JS side. Go only tracks scheduling metadata.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
	seq      uint64
}

// EventLoop schedules timers and delivers fetch completions on the
// goroutine that owns the JS runtime. Fetch goroutines hand results
// over with CompleteFetch; everything else must be called from the
// runtime's goroutine.
type EventLoop struct {
	mu       sync.Mutex
	timers   map[int]*timerEntry
	nextID   int
	seq      uint64
	inflight map[string]struct{}
	fetchSeq uint64
	ready    []completedFetch
	wake     chan struct{}
}

// New creates a new EventLoop.
func New() *EventLoop {
	return &EventLoop{
		timers:   make(map[int]*timerEntry),
		inflight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// RegisterTimer creates a timer entry and returns its ID.
// The actual JS callback is stored in globalThis.__timerCallbacks[id].
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	el.nextID++
	el.seq++
	entry := &timerEntry{
		deadline: time.Now().Add(delay),
		id:       el.nextID,
		seq:      el.seq,
	}
	if isInterval {
		if delay < 10*time.Millisecond {
			delay = 10 * time.Millisecond // minimum interval
		}
		entry.interval = delay
	}
	el.timers[entry.id] = entry
	return entry.id
}

// ClearTimer cancels a timer by ID.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	delete(el.timers, id)
}

// BeginFetch marks a new fetch as in flight so the loop keeps waiting
// for it, and returns its ID. IDs are never reused, so a result that
// arrives after Reset cannot be mistaken for a later fetch.
func (el *EventLoop) BeginFetch() string {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.fetchSeq++
	id := strconv.FormatUint(el.fetchSeq, 10)
	el.inflight[id] = struct{}{}
	return id
}

// CompleteFetch hands a fetch result to the loop. Safe to call from any
// goroutine. Results for fetches the loop no longer tracks are dropped.
func (el *EventLoop) CompleteFetch(id string, result FetchResult) {
	el.mu.Lock()
	if _, ok := el.inflight[id]; !ok {
		el.mu.Unlock()
		return
	}
	delete(el.inflight, id)
	el.ready = append(el.ready, completedFetch{id: id, result: result})
	el.mu.Unlock()
	select {
	case el.wake <- struct{}{}:
	default:
	}
}

// HasPending returns true if there are any active timers or fetches.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0 || len(el.inflight) > 0 || len(el.ready) > 0
}

func (el *EventLoop) deliverFetches(rt core.JSRuntime) bool {
	el.mu.Lock()
	ready := el.ready
	el.ready = nil
	el.mu.Unlock()

	for _, f := range ready {
		var js string
		if f.result.Err != nil {
			js = fmt.Sprintf(`globalThis.__fetchReject(%s, %s)`,
				core.JSString(f.id), core.JSString(f.result.Err.Error()))
		} else {
			js = fmt.Sprintf(`globalThis.__fetchResolve(%s, %d, %s, %s, %s, %v, %s)`,
				core.JSString(f.id), f.result.Status, core.JSString(f.result.StatusText),
				core.JSString(f.result.HeadersJSON), core.JSString(f.result.BodyB64),
				f.result.Redirected, core.JSString(f.result.FinalURL))
		}
		_ = rt.Eval(js)
		// Microtask checkpoint after each fetch resolution.
		rt.RunMicrotasks()
	}
	return len(ready) > 0
}

// nextTimer returns the earliest timer, ties broken by creation order.
func (el *EventLoop) nextTimer() *timerEntry {
	el.mu.Lock()
	defer el.mu.Unlock()
	var next *timerEntry
	for _, t := range el.timers {
		if next == nil || t.deadline.Before(next.deadline) ||
			(t.deadline.Equal(next.deadline) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (el *EventLoop) fireTimer(rt core.JSRuntime, t *timerEntry) bool {
	el.mu.Lock()
	if el.timers[t.id] != t {
		el.mu.Unlock()
		return false
	}
	if t.interval > 0 {
		t.deadline = time.Now().Add(t.interval)
		el.seq++
		t.seq = el.seq
	} else {
		delete(el.timers, t.id)
	}
	el.mu.Unlock()

	_ = rt.Eval(fmt.Sprintf(`globalThis.__timerFire(%d)`, t.id))
	rt.RunMicrotasks()
	return true
}

// RunOnce performs the next unit of work: it delivers completed fetches
// or fires the earliest due timer, blocking until one is available. It
// returns false without blocking when nothing is pending, and ctx.Err()
// when ctx ends first.
func (el *EventLoop) RunOnce(ctx context.Context, rt core.JSRuntime) (bool, error) {
	for {
		if el.deliverFetches(rt) {
			return true, nil
		}
		next := el.nextTimer()
		if next == nil && !el.HasPending() {
			return false, nil
		}
		var t *time.Timer
		var timer <-chan time.Time
		if next != nil {
			wait := time.Until(next.deadline)
			if wait <= 0 {
				if el.fireTimer(rt, next) {
					return true, nil
				}
				continue
			}
			t = time.NewTimer(wait)
			timer = t.C
		}
		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return false, ctx.Err()
		case <-el.wake:
		case <-timer:
		}
		if t != nil {
			t.Stop()
		}
	}
}

// Drain runs the loop until no timers or fetches remain or ctx ends.
func (el *EventLoop) Drain(ctx context.Context, rt core.JSRuntime) error {
	for {
		worked, err := el.RunOnce(ctx, rt)
		if err != nil {
			return err
		}
		if !worked {
			return nil
		}
	}
}

// Reset clears all timers and in-flight fetches. Results of fetches
// started before the reset are dropped when they arrive.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timerEntry)
	el.inflight = make(map[string]struct{})
	el.ready = nil
	el.nextID = 0
	select {
	case <-el.wake:
	default:
	}
}
