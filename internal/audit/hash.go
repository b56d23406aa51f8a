package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the canonical CBOR encoder used for event hashing. Canonical
// map ordering plus RFC 3339 timestamps give a byte-stable encoding, so the
// same event always hashes to the same ID.
var encMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("audit: building canonical CBOR encoder: %v", err))
	}
	encMode = em
}

// hashableEvent is the portion of an Event covered by its hash. EventID is
// excluded because it is the hash.
type hashableEvent struct {
	ChainID      string            `cbor:"chain_id"`
	PreviousHash string            `cbor:"previous_hash"`
	Type         EventType         `cbor:"type"`
	Actor        string            `cbor:"actor"`
	Action       string            `cbor:"action"`
	ObjectHash   string            `cbor:"object_hash,omitempty"`
	Outcome      Outcome           `cbor:"outcome"`
	Severity     Severity          `cbor:"severity"`
	Timestamp    time.Time         `cbor:"timestamp"`
	Details      map[string]string `cbor:"details,omitempty"`
	Metadata     map[string]string `cbor:"metadata,omitempty"`
}

// ComputeEventID returns the SHA-256 hex digest of the event's canonical
// CBOR encoding, excluding the EventID field itself.
func ComputeEventID(e *Event) (string, error) {
	payload := hashableEvent{
		ChainID:      e.ChainID,
		PreviousHash: e.PreviousHash,
		Type:         e.Type,
		Actor:        e.Actor,
		Action:       e.Action,
		ObjectHash:   e.ObjectHash,
		Outcome:      e.Outcome,
		Severity:     e.Severity,
		Timestamp:    e.Timestamp,
		Details:      e.Details,
		Metadata:     e.Metadata,
	}

	encoded, err := encMode.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding event for hashing: %w", err)
	}

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
