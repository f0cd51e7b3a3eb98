package core

import (
	"context"
	"sync"
	"time"
)

// RenderState holds per-render mutable state shared between the Go
// callbacks of the sandbox platform: captured console output, the
// outbound fetch budget and cancel functions for in-flight fetches.
// The sandbox creates one before a render and clears it afterwards.
type RenderState struct {
	mu           sync.Mutex
	logs         []LogEntry
	fetchCount   int
	maxFetches   int
	fetchCancels map[string]context.CancelFunc
	cleanups     []func()
}

// NewRenderState returns a state allowing up to maxFetches fetches.
func NewRenderState(maxFetches int) *RenderState {
	return &RenderState{maxFetches: maxFetches}
}

// AddLog appends a console entry, dropping entries past MaxLogEntries
// and truncating oversized messages.
func (rs *RenderState) AddLog(level, message string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.logs) >= MaxLogEntries {
		return
	}
	if len(message) > MaxLogMessageSize {
		message = message[:MaxLogMessageSize] + "...(truncated)"
	}
	rs.logs = append(rs.logs, LogEntry{
		Level:   level,
		Message: message,
		Time:    time.Now(),
	})
}

// Logs returns the captured console entries.
func (rs *RenderState) Logs() []LogEntry {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]LogEntry(nil), rs.logs...)
}

// AcquireFetch reserves one fetch from the budget and reports whether
// the budget allowed it.
func (rs *RenderState) AcquireFetch() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.maxFetches > 0 && rs.fetchCount >= rs.maxFetches {
		return false
	}
	rs.fetchCount++
	return true
}

// RegisterFetchCancel stores the cancel function of the in-flight fetch id.
func (rs *RenderState) RegisterFetchCancel(id string, cancel context.CancelFunc) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.fetchCancels == nil {
		rs.fetchCancels = make(map[string]context.CancelFunc)
	}
	rs.fetchCancels[id] = cancel
}

// RemoveFetchCancel forgets a finished fetch without cancelling it.
func (rs *RenderState) RemoveFetchCancel(id string) {
	rs.mu.Lock()
	delete(rs.fetchCancels, id)
	rs.mu.Unlock()
}

// CallFetchCancel removes and calls the cancel function for a fetch,
// if present.
func (rs *RenderState) CallFetchCancel(fetchID string) {
	rs.mu.Lock()
	cancel := rs.fetchCancels[fetchID]
	delete(rs.fetchCancels, fetchID)
	rs.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RegisterCleanup adds a function run by Clear. Cleanups run in reverse
// registration order.
func (rs *RenderState) RegisterCleanup(fn func()) {
	rs.mu.Lock()
	rs.cleanups = append(rs.cleanups, fn)
	rs.mu.Unlock()
}

// Clear runs registered cleanups and cancels in-flight fetches.
func (rs *RenderState) Clear() {
	rs.mu.Lock()
	cleanups := rs.cleanups
	cancels := rs.fetchCancels
	rs.cleanups = nil
	rs.fetchCancels = nil
	rs.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	for _, cancel := range cancels {
		cancel()
	}
}
