package provenance

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Manager records and queries object provenance. All mutations are
// append-only; the stored graph is a DAG keyed by content hash.
type Manager struct {
	repo    Repository
	logger  *slog.Logger
	timeNow func() time.Time // For testability
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.timeNow = now
		}
	}
}

// NewManager creates a provenance manager over the given repository.
func NewManager(repo Repository, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		logger:  slog.Default(),
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordOrigin records how an object entered the system. One origin per
// object: a second call for the same hash fails with ErrDuplicateOrigin.
func (m *Manager) RecordOrigin(objectHash string, sourceType SourceType, creator string) (*Origin, error) {
	if !ValidSourceTypes[sourceType] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceType, sourceType)
	}

	existing, err := m.repo.GetOrigin(objectHash)
	if err != nil {
		return nil, fmt.Errorf("checking existing origin: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrigin, objectHash)
	}

	origin := &Origin{
		ObjectHash: objectHash,
		SourceType: sourceType,
		Creator:    creator,
		RecordedAt: m.timeNow().UTC(),
	}
	if err := m.repo.PutOrigin(origin); err != nil {
		return nil, fmt.Errorf("recording origin: %w", err)
	}

	m.logger.Debug("origin recorded", "object", objectHash, "source", sourceType, "creator", creator)
	o := *origin
	return &o, nil
}

// RecordDerivation records derivation edges from each parent to the child.
// Every parent must already have provenance (an origin or an incoming
// derivation); otherwise the call fails with ErrUnknownParent and records
// nothing. Returns one event per parent.
func (m *Manager) RecordDerivation(parentHashes []string, childHash string, relationship Relationship, actor string) ([]EvolutionEvent, error) {
	if len(parentHashes) == 0 {
		return nil, ErrNoParents
	}
	if !ValidRelationships[relationship] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRelationship, relationship)
	}

	// Validate all parents before writing anything.
	for _, parent := range parentHashes {
		if parent == childHash {
			return nil, fmt.Errorf("%w: %s", ErrSelfDerivation, childHash)
		}
		known, err := m.isKnown(parent)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParent, parent)
		}
	}

	now := m.timeNow().UTC()
	events := make([]EvolutionEvent, 0, len(parentHashes))
	for _, parent := range parentHashes {
		event := EvolutionEvent{
			ID:           uuid.New().String(),
			ParentHash:   parent,
			ChildHash:    childHash,
			Relationship: relationship,
			Actor:        actor,
			RecordedAt:   now,
		}
		if err := m.repo.PutEvent(&event); err != nil {
			return nil, fmt.Errorf("recording derivation from %s: %w", parent, err)
		}
		events = append(events, event)
	}

	m.logger.Debug("derivation recorded", "child", childHash, "parents", len(parentHashes), "relationship", relationship)
	return events, nil
}

// RetractOrigin removes a previously recorded origin. Intended for
// compensating a failed multi-step registration, not general use.
func (m *Manager) RetractOrigin(objectHash string) error {
	if err := m.repo.DeleteOrigin(objectHash); err != nil {
		return fmt.Errorf("retracting origin: %w", err)
	}
	m.logger.Debug("origin retracted", "object", objectHash)
	return nil
}

// RetractDerivation removes all derivation events recorded for a child.
// Intended for compensating a failed multi-step derivation, not general use.
func (m *Manager) RetractDerivation(childHash string) error {
	if err := m.repo.DeleteEventsByChild(childHash); err != nil {
		return fmt.Errorf("retracting derivation: %w", err)
	}
	m.logger.Debug("derivation retracted", "child", childHash)
	return nil
}

// isKnown reports whether an object has any recorded provenance.
func (m *Manager) isKnown(objectHash string) (bool, error) {
	origin, err := m.repo.GetOrigin(objectHash)
	if err != nil {
		return false, fmt.Errorf("looking up origin: %w", err)
	}
	if origin != nil {
		return true, nil
	}
	incoming, err := m.repo.EventsByChild(objectHash)
	if err != nil {
		return false, fmt.Errorf("looking up derivations: %w", err)
	}
	return len(incoming) > 0, nil
}

// GetChain returns the provenance chain for an object: every ancestor from
// the root origins down to the object itself, topologically ordered so that
// parents always precede children. A cycle in stored data returns a
// CycleError; the caller is expected to treat it as data corruption.
func (m *Manager) GetChain(objectHash string) ([]ChainEntry, error) {
	known, err := m.isKnown(objectHash)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, objectHash)
	}

	// Depth-first walk up the ancestry with an explicit visit state map:
	// 0 = unvisited, 1 = in progress (on stack), 2 = done. Re-entering an
	// in-progress node means the stored graph has a cycle.
	const (
		stateInProgress = 1
		stateDone       = 2
	)
	state := make(map[string]int)
	var ordered []string

	var visit func(hash string) error
	visit = func(hash string) error {
		switch state[hash] {
		case stateDone:
			return nil
		case stateInProgress:
			return &CycleError{ObjectHash: hash}
		}
		state[hash] = stateInProgress

		incoming, err := m.repo.EventsByChild(hash)
		if err != nil {
			return fmt.Errorf("walking ancestry of %s: %w", hash, err)
		}
		// Deterministic order regardless of repository iteration order.
		sort.Slice(incoming, func(i, j int) bool {
			return incoming[i].ParentHash < incoming[j].ParentHash
		})
		for _, event := range incoming {
			if err := visit(event.ParentHash); err != nil {
				return err
			}
		}

		state[hash] = stateDone
		ordered = append(ordered, hash)
		return nil
	}

	if err := visit(objectHash); err != nil {
		var cycleErr *CycleError
		if errors.As(err, &cycleErr) {
			m.logger.Error("provenance cycle detected", "object", cycleErr.ObjectHash)
		}
		return nil, err
	}

	chain := make([]ChainEntry, 0, len(ordered))
	for _, hash := range ordered {
		origin, err := m.repo.GetOrigin(hash)
		if err != nil {
			return nil, fmt.Errorf("loading origin for %s: %w", hash, err)
		}
		incoming, err := m.repo.EventsByChild(hash)
		if err != nil {
			return nil, fmt.Errorf("loading events for %s: %w", hash, err)
		}
		chain = append(chain, ChainEntry{
			ObjectHash: hash,
			Origin:     origin,
			Incoming:   incoming,
		})
	}
	return chain, nil
}

// GetDescendants returns the hashes of every object derived (transitively)
// from the given object, in breadth-first order. Cycles in stored data
// return a CycleError.
func (m *Manager) GetDescendants(objectHash string) ([]string, error) {
	visited := map[string]bool{objectHash: true}
	queue := []string{objectHash}
	var descendants []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		outgoing, err := m.repo.EventsByParent(current)
		if err != nil {
			return nil, fmt.Errorf("walking descendants of %s: %w", current, err)
		}
		sort.Slice(outgoing, func(i, j int) bool {
			return outgoing[i].ChildHash < outgoing[j].ChildHash
		})
		for _, event := range outgoing {
			if event.ChildHash == objectHash {
				return nil, &CycleError{ObjectHash: objectHash}
			}
			if visited[event.ChildHash] {
				continue
			}
			visited[event.ChildHash] = true
			descendants = append(descendants, event.ChildHash)
			queue = append(queue, event.ChildHash)
		}
	}
	return descendants, nil
}

// QueryByCreator returns the hashes of objects originated by a creator.
func (m *Manager) QueryByCreator(creator string) ([]string, error) {
	return m.repo.OriginsByCreator(creator)
}

// QueryByTimeline returns the hashes of objects with origins recorded in
// [start, end).
func (m *Manager) QueryByTimeline(start, end time.Time) ([]string, error) {
	return m.repo.OriginsInRange(start, end)
}

// GetOrigin returns the origin for an object, or ErrUnknownObject.
func (m *Manager) GetOrigin(objectHash string) (*Origin, error) {
	origin, err := m.repo.GetOrigin(objectHash)
	if err != nil {
		return nil, err
	}
	if origin == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, objectHash)
	}
	return origin, nil
}
