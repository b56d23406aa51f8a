package signature

import (
	"errors"
	"time"
)

// CertificateStatus is the lifecycle state of a certificate.
type CertificateStatus string

// Certificate statuses.
const (
	StatusValid   CertificateStatus = "valid"
	StatusExpired CertificateStatus = "expired"
	StatusRevoked CertificateStatus = "revoked"
	StatusPending CertificateStatus = "pending"
)

// Certificate binds a public key to a subject. An empty IssuerID marks a
// self-signed root; otherwise IssuerID references the issuing certificate,
// forming a chain of trust.
type Certificate struct {
	ID               string            `json:"id"`
	Subject          string            `json:"subject"`
	IssuerID         string            `json:"issuer_id,omitempty"`
	PublicKeyHex     string            `json:"public_key"`
	Algorithm        Algorithm         `json:"algorithm"`
	ValidFrom        time.Time         `json:"valid_from"`
	ValidUntil       time.Time         `json:"valid_until"`
	Status           CertificateStatus `json:"status"`
	RevocationReason string            `json:"revocation_reason,omitempty"`
	RevokedAt        time.Time         `json:"revoked_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// IsRoot reports whether the certificate is self-signed.
func (c *Certificate) IsRoot() bool {
	return c.IssuerID == ""
}

// InWindow reports whether now falls inside the certificate's validity
// window.
func (c *Certificate) InWindow(now time.Time) bool {
	return !now.Before(c.ValidFrom) && now.Before(c.ValidUntil)
}

// Timestamp anchors a signature in the audit log. AuditEventID is the hash
// of the audit event recorded at signing time, so the signature's existence
// at that instant is covered by the audit chain's tamper evidence.
type Timestamp struct {
	SignatureID  string    `json:"signature_id"`
	AnchoredAt   time.Time `json:"anchored_at"`
	AuditEventID string    `json:"audit_event_id"`
}

// ObjectSignature is one signer's signature over an object. Multiple
// independent signatures per object are allowed.
type ObjectSignature struct {
	ID            string     `json:"id"`
	ObjectHash    string     `json:"object_hash"`
	Signer        string     `json:"signer"`
	CertificateID string     `json:"certificate_id"`
	SignatureHex  string     `json:"signature"`
	SignedAt      time.Time  `json:"signed_at"`
	Timestamp     *Timestamp `json:"timestamp,omitempty"`
}

// VerificationResult is the full outcome of verifying a signature. Valid is
// true only when the cryptographic check, the certificate, the chain walk,
// and any timestamp all pass.
type VerificationResult struct {
	Valid            bool
	SignatureValid   bool
	CertificateValid bool
	ChainValid       bool
	TimestampValid   bool
	Chain            []string // certificate IDs, leaf first
	Errors           []string
	CheckedAt        time.Time
}

// maxChainDepth bounds certificate chain walks. A longer chain is treated
// as invalid rather than an error.
const maxChainDepth = 8

// Sentinel errors.
var (
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrKeyNotFound          = errors.New("private key not found")
	ErrCertificateNotFound  = errors.New("certificate not found")
	ErrSignatureNotFound    = errors.New("signature not found")
	ErrCertificateRevoked   = errors.New("certificate is already revoked")
	ErrInvalidValidity      = errors.New("certificate validity must be a positive number of days")
	ErrKeyMismatch          = errors.New("private key does not match certificate public key")
)
