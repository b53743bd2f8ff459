// Package runtime holds the ephemeral connection state and the event
// paths built on it. Nothing in this package is persisted: a restart
// leaves every user implicitly offline until they reconnect.
package runtime

import (
	"sync"

	"courier/contract"
	"courier/domain"
)

// Registry is the process-wide map from user to live connection.
// All mutations for a given user are linearized behind the lock, so a
// late unregister can never race past a concurrent reconnect.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.Handle // userID -> active connection
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]contract.Handle)}
}

// Register installs the connection for a user and returns any handle it
// replaced so the caller can close it. wasOnline distinguishes a fresh
// Offline->Online transition from a reconnect supersede: a reconnect
// must not produce a spurious offline/online broadcast pair.
func (r *Registry) Register(userID string, h contract.Handle) (*contract.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, wasOnline := r.sessions[userID]
	r.sessions[userID] = h
	if !wasOnline {
		return nil, false
	}
	return &prev, true
}

// Unregister removes the user's entry only if the registered handle is
// the one given. A stale disconnect arriving after a reconnect finds a
// different ConnID and leaves the newer connection untouched.
func (r *Registry) Unregister(userID string, h contract.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current.ConnID != h.ConnID {
		return false
	}
	delete(r.sessions, userID)
	return true
}

func (r *Registry) Lookup(userID string) (contract.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[userID]
	return h, ok
}

// Snapshot reports who is currently online. The map only carries
// online entries; callers treat missing keys as offline.
func (r *Registry) Snapshot() map[string]domain.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make(map[string]domain.Status, len(r.sessions))
	for userID := range r.sessions {
		statuses[userID] = domain.StatusOnline
	}
	return statuses
}

// Sinks returns the outbound channel of every live connection, for
// broadcast-style delivery.
func (r *Registry) Sinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.sessions))
	for _, h := range r.sessions {
		sinks = append(sinks, h.Sink)
	}
	return sinks
}
