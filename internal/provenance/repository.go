package provenance

import (
	"sync"
	"time"
)

// Repository defines the persistence interface for provenance records.
// Implementations must treat origins and events as append-only.
type Repository interface {
	// PutOrigin persists an origin record.
	PutOrigin(origin *Origin) error

	// GetOrigin retrieves the origin for an object, or nil if none exists.
	GetOrigin(objectHash string) (*Origin, error)

	// PutEvent persists a derivation event.
	PutEvent(event *EvolutionEvent) error

	// EventsByChild returns all events whose child is the given object.
	EventsByChild(objectHash string) ([]EvolutionEvent, error)

	// EventsByParent returns all events whose parent is the given object.
	EventsByParent(objectHash string) ([]EvolutionEvent, error)

	// OriginsByCreator returns the object hashes originated by a creator,
	// in recording order.
	OriginsByCreator(creator string) ([]string, error)

	// OriginsInRange returns the object hashes with origins recorded in
	// [start, end), in recording order.
	OriginsInRange(start, end time.Time) ([]string, error)

	// DeleteOrigin removes the origin record for an object. Used only for
	// compensating a failed multi-step registration; a no-op when no origin
	// exists.
	DeleteOrigin(objectHash string) error

	// DeleteEventsByChild removes all derivation events whose child is the
	// given object. Used only for compensating a failed derivation.
	DeleteEventsByChild(childHash string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and embedding. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu        sync.RWMutex
	origins   map[string]*Origin
	byChild   map[string][]EvolutionEvent
	byParent  map[string][]EvolutionEvent
	byCreator map[string][]string
	ordered   []string // origin object hashes in recording order
}

// NewInMemoryRepository creates a new in-memory provenance repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		origins:   make(map[string]*Origin),
		byChild:   make(map[string][]EvolutionEvent),
		byParent:  make(map[string][]EvolutionEvent),
		byCreator: make(map[string][]string),
	}
}

// PutOrigin persists an origin record.
func (r *InMemoryRepository) PutOrigin(origin *Origin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := *origin
	r.origins[o.ObjectHash] = &o
	r.byCreator[o.Creator] = append(r.byCreator[o.Creator], o.ObjectHash)
	r.ordered = append(r.ordered, o.ObjectHash)
	return nil
}

// GetOrigin retrieves the origin for an object, or nil if none exists.
func (r *InMemoryRepository) GetOrigin(objectHash string) (*Origin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	origin, ok := r.origins[objectHash]
	if !ok {
		return nil, nil
	}
	o := *origin
	return &o, nil
}

// PutEvent persists a derivation event.
func (r *InMemoryRepository) PutEvent(event *EvolutionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *event
	r.byChild[e.ChildHash] = append(r.byChild[e.ChildHash], e)
	r.byParent[e.ParentHash] = append(r.byParent[e.ParentHash], e)
	return nil
}

// EventsByChild returns all events whose child is the given object.
func (r *InMemoryRepository) EventsByChild(objectHash string) ([]EvolutionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.byChild[objectHash]
	result := make([]EvolutionEvent, len(events))
	copy(result, events)
	return result, nil
}

// EventsByParent returns all events whose parent is the given object.
func (r *InMemoryRepository) EventsByParent(objectHash string) ([]EvolutionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.byParent[objectHash]
	result := make([]EvolutionEvent, len(events))
	copy(result, events)
	return result, nil
}

// OriginsByCreator returns the object hashes originated by a creator.
func (r *InMemoryRepository) OriginsByCreator(creator string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hashes := r.byCreator[creator]
	result := make([]string, len(hashes))
	copy(result, hashes)
	return result, nil
}

// DeleteOrigin removes the origin record for an object.
func (r *InMemoryRepository) DeleteOrigin(objectHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	origin, ok := r.origins[objectHash]
	if !ok {
		return nil
	}
	delete(r.origins, objectHash)
	r.byCreator[origin.Creator] = removeHash(r.byCreator[origin.Creator], objectHash)
	r.ordered = removeHash(r.ordered, objectHash)
	return nil
}

// DeleteEventsByChild removes all derivation events whose child is the
// given object.
func (r *InMemoryRepository) DeleteEventsByChild(childHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.byChild[childHash]
	delete(r.byChild, childHash)
	for _, e := range events {
		kept := r.byParent[e.ParentHash][:0]
		for _, pe := range r.byParent[e.ParentHash] {
			if pe.ChildHash != childHash {
				kept = append(kept, pe)
			}
		}
		r.byParent[e.ParentHash] = kept
	}
	return nil
}

// removeHash removes the first occurrence of hash from hashes.
func removeHash(hashes []string, hash string) []string {
	for i, h := range hashes {
		if h == hash {
			return append(hashes[:i], hashes[i+1:]...)
		}
	}
	return hashes
}

// OriginsInRange returns object hashes with origins recorded in [start, end).
func (r *InMemoryRepository) OriginsInRange(start, end time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []string
	for _, hash := range r.ordered {
		o := r.origins[hash]
		if (o.RecordedAt.Equal(start) || o.RecordedAt.After(start)) && o.RecordedAt.Before(end) {
			result = append(result, hash)
		}
	}
	return result, nil
}
