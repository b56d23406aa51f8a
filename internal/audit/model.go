// Package audit provides tamper-evident audit logging. Events are linked
// into daily hash chains: each event's ID is the SHA-256 of its canonical
// encoding, and each event records the hash of its predecessor, so any
// mutation of a stored event breaks verification of the whole chain segment.
package audit

import (
	"errors"
	"fmt"
	"time"
)

// EventType classifies an audit event. Types are grouped by the subsystem
// that emits them.
type EventType string

// Object lifecycle events.
const (
	EventObjectCreated         EventType = "object_created"
	EventObjectRead            EventType = "object_read"
	EventObjectUpdateAttempted EventType = "object_update_attempted"
	EventObjectDeleteAttempted EventType = "object_delete_attempted"
)

// Provenance events.
const (
	EventOriginRecorded     EventType = "origin_recorded"
	EventDerivationRecorded EventType = "derivation_recorded"
)

// IP management events.
const (
	EventLicenseApplied       EventType = "license_applied"
	EventLicenseConflict      EventType = "license_conflict"
	EventAttributionCreated   EventType = "attribution_created"
	EventAttributionInherited EventType = "attribution_inherited"
)

// Access control events.
const (
	EventAccessGranted     EventType = "access_granted"
	EventAccessRevoked     EventType = "access_revoked"
	EventAccessChecked     EventType = "access_checked"
	EventAccessDenied      EventType = "access_denied"
	EventVisibilityChanged EventType = "visibility_changed"
)

// System events.
const (
	EventIntegrityCheck EventType = "integrity_check"
	EventSystemError    EventType = "system_error"
	EventConfigChanged  EventType = "config_changed"
)

// Governance events.
const (
	EventProposalCreated   EventType = "proposal_created"
	EventVoteCast          EventType = "vote_cast"
	EventProposalFinalized EventType = "proposal_finalized"
	EventPolicyUpdated     EventType = "policy_updated"
)

// Signature and key management events.
const (
	EventKeyGenerated       EventType = "key_generated"
	EventCertificateIssued  EventType = "certificate_issued"
	EventCertificateRevoked EventType = "certificate_revoked"
	EventObjectSigned       EventType = "object_signed"
	EventSignatureVerified  EventType = "signature_verified"
)

// Severity grades how serious an event is.
type Severity string

// Severity levels, least to most serious.
const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityNotice   Severity = "notice"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome records how the audited operation ended.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// Event is an immutable audit record. EventID is the SHA-256 of the event's
// canonical CBOR encoding (with EventID itself excluded), and PreviousHash
// links it to the prior event in the same daily chain. The first event of a
// chain has an empty PreviousHash.
type Event struct {
	EventID      string            `json:"event_id"`
	ChainID      string            `json:"chain_id"`
	PreviousHash string            `json:"previous_hash"`
	Type         EventType         `json:"type"`
	Actor        string            `json:"actor"`
	Action       string            `json:"action"`
	ObjectHash   string            `json:"object_hash,omitempty"`
	Outcome      Outcome           `json:"outcome"`
	Severity     Severity          `json:"severity"`
	Timestamp    time.Time         `json:"timestamp"`
	Details      map[string]string `json:"details,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Entry is the caller-supplied input for recording an event. The manager
// fills in the chain linkage, timestamp, and event ID.
type Entry struct {
	Type       EventType
	Actor      string
	Action     string
	ObjectHash string
	Outcome    Outcome
	Severity   Severity
	Details    map[string]string
	Metadata   map[string]string
}

// ComplianceReport summarizes audit activity over a time range.
type ComplianceReport struct {
	From       time.Time
	To         time.Time
	Total      int
	ByOutcome  map[Outcome]int
	BySeverity map[Severity]int
	ByType     map[EventType]int
}

// Sentinel errors.
var (
	ErrInvalidEntry  = errors.New("audit entry is missing required fields")
	ErrUnknownChain  = errors.New("audit chain not found")
	ErrEventNotFound = errors.New("audit event not found")
)

// TamperError reports a chain whose recorded hashes no longer match its
// contents. It identifies the first event at which verification failed.
type TamperError struct {
	ChainID string
	EventID string
	Reason  string
}

func (e *TamperError) Error() string {
	return fmt.Sprintf("audit chain %s tampered at event %s: %s", e.ChainID, e.EventID, e.Reason)
}

// ChainIDFor returns the daily chain identifier for a timestamp.
func ChainIDFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
