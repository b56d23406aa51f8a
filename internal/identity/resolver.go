// Package identity resolves actor membership in groups and roles for
// access evaluation. Resolution is delegated: access grants name groups and
// roles, and this package answers whether an actor belongs to them.
package identity

import (
	"errors"
	"sync"
)

// SubjectKind distinguishes grant subjects.
type SubjectKind string

// Grant subject kinds.
const (
	KindUser  SubjectKind = "user"
	KindGroup SubjectKind = "group"
	KindRole  SubjectKind = "role"
)

// ErrUnknownActor is returned when an actor has no known identity.
var ErrUnknownActor = errors.New("unknown actor")

// Resolver answers membership questions about actors.
type Resolver interface {
	// ResolveMembership reports whether actor belongs to the named group
	// or role. KindUser subjects are matched by the caller directly and
	// never reach the resolver.
	ResolveMembership(actor string, kind SubjectKind, name string) (bool, error)
}

// StaticResolver is a map-backed Resolver for tests and embedded use.
// Thread-safe via RWMutex.
type StaticResolver struct {
	mu     sync.RWMutex
	groups map[string]map[string]bool // group -> set of actors
	roles  map[string]map[string]bool // role -> set of actors
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		groups: make(map[string]map[string]bool),
		roles:  make(map[string]map[string]bool),
	}
}

// AddToGroup records an actor's membership in a group.
func (r *StaticResolver) AddToGroup(actor, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groups[group] == nil {
		r.groups[group] = make(map[string]bool)
	}
	r.groups[group][actor] = true
}

// AssignRole records an actor's role.
func (r *StaticResolver) AssignRole(actor, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[role] == nil {
		r.roles[role] = make(map[string]bool)
	}
	r.roles[role][actor] = true
}

// ResolveMembership reports whether actor belongs to the named group or role.
func (r *StaticResolver) ResolveMembership(actor string, kind SubjectKind, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch kind {
	case KindGroup:
		return r.groups[name][actor], nil
	case KindRole:
		return r.roles[name][actor], nil
	default:
		return false, nil
	}
}
