// Package provenance records the origin and derivation history of
// content-addressed objects as an append-only directed acyclic graph.
package provenance

import (
	"errors"
	"time"
)

// SourceType describes how an object entered the system.
type SourceType string

// Valid source types.
const (
	SourceOriginal  SourceType = "original"
	SourceImported  SourceType = "imported"
	SourceDerived   SourceType = "derived"
	SourceGenerated SourceType = "generated"
	SourceMerged    SourceType = "merged"
	SourceForked    SourceType = "forked"
)

// ValidSourceTypes is the set of accepted source types.
var ValidSourceTypes = map[SourceType]bool{
	SourceOriginal:  true,
	SourceImported:  true,
	SourceDerived:   true,
	SourceGenerated: true,
	SourceMerged:    true,
	SourceForked:    true,
}

// Relationship tags a derivation edge.
type Relationship string

// Valid derivation relationships.
const (
	RelDerivesFrom Relationship = "derives_from"
	RelRefines     Relationship = "refines"
	RelTransforms  Relationship = "transforms"
	RelMerges      Relationship = "merges"
)

// ValidRelationships is the set of accepted relationship tags.
var ValidRelationships = map[Relationship]bool{
	RelDerivesFrom: true,
	RelRefines:     true,
	RelTransforms:  true,
	RelMerges:      true,
}

// Validation and business-rule errors.
var (
	ErrInvalidSourceType   = errors.New("invalid source type")
	ErrInvalidRelationship = errors.New("invalid relationship")
	ErrDuplicateOrigin     = errors.New("origin already recorded for object")
	ErrUnknownParent       = errors.New("parent object has no recorded provenance")
	ErrUnknownObject       = errors.New("object has no recorded provenance")
	ErrNoParents           = errors.New("derivation requires at least one parent")
	ErrSelfDerivation      = errors.New("object cannot derive from itself")
)

// CycleError reports a cycle discovered in stored provenance data. Stored
// data is supposed to be a DAG; a cycle means corruption, not caller error.
type CycleError struct {
	ObjectHash string
}

func (e *CycleError) Error() string {
	return "provenance data corruption: cycle detected at object " + e.ObjectHash
}

// Origin describes how an object entered the system. One per object,
// created at registration.
type Origin struct {
	ObjectHash string     `json:"object_hash"`
	SourceType SourceType `json:"source_type"`
	Creator    string     `json:"creator"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// EvolutionEvent is a directed derivation edge parent → child. Multiple
// events may share a child (multi-parent merges). Events are append-only.
type EvolutionEvent struct {
	ID           string       `json:"id"`
	ParentHash   string       `json:"parent_hash"`
	ChildHash    string       `json:"child_hash"`
	Relationship Relationship `json:"relationship"`
	Actor        string       `json:"actor"`
	RecordedAt   time.Time    `json:"recorded_at"`
}

// ChainEntry is a single step in an object's provenance chain, ordered from
// root origins toward the queried object.
type ChainEntry struct {
	ObjectHash string           `json:"object_hash"`
	Origin     *Origin          `json:"origin,omitempty"`
	Incoming   []EvolutionEvent `json:"incoming,omitempty"`
}
