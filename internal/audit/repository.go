package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines storage operations for audit events. Implementations
// must preserve append order within a chain.
type Repository interface {
	// Append stores an event. The event's chain linkage and ID are already
	// set by the manager.
	Append(ctx context.Context, event *Event) error

	// LastEvent returns the most recently appended event of a chain, or
	// nil if the chain has no events yet.
	LastEvent(ctx context.Context, chainID string) (*Event, error)

	// EventsByChain returns a chain's events in append order.
	EventsByChain(ctx context.Context, chainID string) ([]*Event, error)

	// EventsByActor returns events for an actor, newest first.
	// Limit 0 means no limit.
	EventsByActor(ctx context.Context, actor string, limit int) ([]*Event, error)

	// EventsByObject returns events referencing an object hash, newest
	// first. Limit 0 means no limit.
	EventsByObject(ctx context.Context, objectHash string, limit int) ([]*Event, error)

	// EventsByRange returns events with from <= Timestamp < to, in append
	// order.
	EventsByRange(ctx context.Context, from, to time.Time) ([]*Event, error)

	// ChainIDs returns the identifiers of all chains, sorted ascending.
	ChainIDs(ctx context.Context) ([]string, error)
}

// InMemoryRepository is an in-memory implementation of Repository with
// redundant indexes by chain, actor, and object. Used for testing and
// development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu       sync.RWMutex
	byChain  map[string][]*Event
	byActor  map[string][]*Event
	byObject map[string][]*Event
	ordered  []*Event
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byChain:  make(map[string][]*Event),
		byActor:  make(map[string][]*Event),
		byObject: make(map[string][]*Event),
	}
}

// Append stores an event.
func (r *InMemoryRepository) Append(ctx context.Context, event *Event) error {
	stored := copyEvent(event)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byChain[stored.ChainID] = append(r.byChain[stored.ChainID], stored)
	r.byActor[stored.Actor] = append(r.byActor[stored.Actor], stored)
	if stored.ObjectHash != "" {
		r.byObject[stored.ObjectHash] = append(r.byObject[stored.ObjectHash], stored)
	}
	r.ordered = append(r.ordered, stored)
	return nil
}

// LastEvent returns the most recently appended event of a chain.
func (r *InMemoryRepository) LastEvent(ctx context.Context, chainID string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.byChain[chainID]
	if len(events) == 0 {
		return nil, nil
	}
	return copyEvent(events[len(events)-1]), nil
}

// EventsByChain returns a chain's events in append order.
func (r *InMemoryRepository) EventsByChain(ctx context.Context, chainID string) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.byChain[chainID]
	results := make([]*Event, len(events))
	for i, e := range events {
		results[i] = copyEvent(e)
	}
	return results, nil
}

// EventsByActor returns events for an actor, newest first.
func (r *InMemoryRepository) EventsByActor(ctx context.Context, actor string, limit int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(r.byActor[actor], limit), nil
}

// EventsByObject returns events referencing an object hash, newest first.
func (r *InMemoryRepository) EventsByObject(ctx context.Context, objectHash string, limit int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(r.byObject[objectHash], limit), nil
}

// EventsByRange returns events with from <= Timestamp < to, in append order.
func (r *InMemoryRepository) EventsByRange(ctx context.Context, from, to time.Time) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Event
	for _, e := range r.ordered {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		results = append(results, copyEvent(e))
	}
	return results, nil
}

// ChainIDs returns the identifiers of all chains, sorted ascending.
func (r *InMemoryRepository) ChainIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byChain))
	for id := range r.byChain {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func newestFirst(events []*Event, limit int) []*Event {
	var results []*Event
	for i := len(events) - 1; i >= 0; i-- {
		results = append(results, copyEvent(events[i]))
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results
}

// copyEvent returns a deep copy to prevent external modification.
func copyEvent(e *Event) *Event {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
