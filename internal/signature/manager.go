package signature

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/panini-fs/ipcore/internal/audit"
)

// Recorder is the slice of the audit manager this package needs for
// anchoring timestamps and recording key lifecycle events.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (*audit.Event, error)
}

// encMode is the canonical CBOR encoder for signature payloads.
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("signature: building canonical CBOR encoder: %v", err))
	}
	encMode = em
}

// signPayload is the byte content actually signed. Binding the signer and
// certificate into the payload prevents a signature from being replayed
// under a different identity.
type signPayload struct {
	ObjectHash    string `cbor:"object_hash"`
	Signer        string `cbor:"signer"`
	CertificateID string `cbor:"certificate_id"`
}

func encodePayload(objectHash, signer, certID string) ([]byte, error) {
	payload, err := encMode.Marshal(signPayload{
		ObjectHash:    objectHash,
		Signer:        signer,
		CertificateID: certID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding signature payload: %w", err)
	}
	return payload, nil
}

// Manager issues certificates, signs objects, and verifies signatures.
type Manager struct {
	repo     Repository
	recorder Recorder
	logger   *slog.Logger
	timeNow  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecorder attaches an audit recorder for timestamp anchoring and
// certificate lifecycle events.
func WithRecorder(recorder Recorder) Option {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.timeNow = now
		}
	}
}

// NewManager creates a signature manager backed by repo.
func NewManager(repo Repository, opts ...Option) *Manager {
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

// GenerateKeyPair creates a fresh key pair for an actor and records the
// generation in the audit log. Only the public half ever leaves the caller.
func (m *Manager) GenerateKeyPair(ctx context.Context, actor string, algorithm Algorithm) (*KeyPair, error) {
	pair, err := GenerateKeyPair(algorithm)
	if err != nil {
		return nil, err
	}
	if m.recorder != nil {
		if _, err := m.recorder.Record(ctx, audit.Entry{
			Type:    audit.EventKeyGenerated,
			Actor:   actor,
			Action:  "generate_key_pair",
			Outcome: audit.OutcomeSuccess,
			Details: map[string]string{"algorithm": string(algorithm)},
		}); err != nil {
			return nil, fmt.Errorf("recording key generation: %w", err)
		}
	}
	return pair, nil
}

// CreateCertificate issues a certificate binding publicKeyHex to subject.
// An empty issuerID creates a self-signed root; otherwise the issuer
// certificate must exist, be within its validity window, and not be
// revoked.
func (m *Manager) CreateCertificate(ctx context.Context, subject, publicKeyHex, issuerID string, validityDays int) (*Certificate, error) {
	if validityDays <= 0 {
		return nil, ErrInvalidValidity
	}
	if _, err := hex.DecodeString(publicKeyHex); err != nil {
		return nil, fmt.Errorf("invalid public key encoding: %w", err)
	}

	now := m.timeNow().UTC()
	if issuerID != "" {
		issuer, err := m.repo.GetCertificate(issuerID)
		if err != nil {
			return nil, err
		}
		if issuer.Status == StatusRevoked {
			return nil, fmt.Errorf("issuer %s: %w", issuerID, ErrCertificateRevoked)
		}
		if !issuer.InWindow(now) {
			return nil, fmt.Errorf("issuer certificate %s is outside its validity window", issuerID)
		}
	}

	cert := &Certificate{
		ID:           uuid.New().String(),
		Subject:      subject,
		IssuerID:     issuerID,
		PublicKeyHex: publicKeyHex,
		Algorithm:    AlgorithmEd25519,
		ValidFrom:    now,
		ValidUntil:   now.AddDate(0, 0, validityDays),
		Status:       StatusValid,
		CreatedAt:    now,
	}
	if err := m.repo.PutCertificate(cert); err != nil {
		return nil, fmt.Errorf("storing certificate: %w", err)
	}

	if m.recorder != nil {
		if _, err := m.recorder.Record(ctx, audit.Entry{
			Type:    audit.EventCertificateIssued,
			Actor:   subject,
			Action:  "create_certificate",
			Outcome: audit.OutcomeSuccess,
			Details: map[string]string{
				"certificate_id": cert.ID,
				"issuer_id":      issuerID,
			},
		}); err != nil {
			return nil, fmt.Errorf("recording certificate issuance: %w", err)
		}
	}
	return cert, nil
}

// SignObject signs an object hash with the caller's private key under a
// certificate. With withTimestamp set, the signature is anchored in the
// audit log; anchoring requires a configured recorder.
func (m *Manager) SignObject(ctx context.Context, objectHash string, privateKey ed25519.PrivateKey, signer, certID string, withTimestamp bool) (*ObjectSignature, error) {
	cert, err := m.repo.GetCertificate(certID)
	if err != nil {
		return nil, err
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey))
	}

	pub := privateKey.Public().(ed25519.PublicKey)
	if hex.EncodeToString(pub) != cert.PublicKeyHex {
		return nil, ErrKeyMismatch
	}

	now := m.timeNow().UTC()
	if cert.Status == StatusRevoked {
		return nil, fmt.Errorf("certificate %s: %w", certID, ErrCertificateRevoked)
	}
	if !cert.InWindow(now) {
		return nil, fmt.Errorf("certificate %s is outside its validity window", certID)
	}

	payload, err := encodePayload(objectHash, signer, certID)
	if err != nil {
		return nil, err
	}

	sig := &ObjectSignature{
		ID:            uuid.New().String(),
		ObjectHash:    objectHash,
		Signer:        signer,
		CertificateID: certID,
		SignatureHex:  hex.EncodeToString(ed25519.Sign(privateKey, payload)),
		SignedAt:      now,
	}

	if withTimestamp {
		if m.recorder == nil {
			return nil, fmt.Errorf("timestamping requires an audit recorder")
		}
		event, err := m.recorder.Record(ctx, audit.Entry{
			Type:       audit.EventObjectSigned,
			Actor:      signer,
			Action:     "sign_object",
			ObjectHash: objectHash,
			Outcome:    audit.OutcomeSuccess,
			Details: map[string]string{
				"signature_id":   sig.ID,
				"certificate_id": certID,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("anchoring signature timestamp: %w", err)
		}
		sig.Timestamp = &Timestamp{
			SignatureID:  sig.ID,
			AnchoredAt:   event.Timestamp,
			AuditEventID: event.EventID,
		}
	}

	if err := m.repo.PutSignature(sig); err != nil {
		return nil, fmt.Errorf("storing signature: %w", err)
	}
	m.logger.Debug("object signed",
		slog.String("signature_id", sig.ID),
		slog.String("object_hash", objectHash),
		slog.String("signer", signer))
	return copySignature(sig), nil
}

// VerifySignature verifies a stored signature: the Ed25519 check against
// the leaf certificate's key, the leaf's own status and window, the chain
// walk to the root, and the timestamp anchor when present. Valid is true
// only when every check passes. Problems are reported in the result, not as
// errors; the error return is for storage failures only.
func (m *Manager) VerifySignature(ctx context.Context, sigID string) (*VerificationResult, error) {
	sig, err := m.repo.GetSignature(sigID)
	if err != nil {
		return nil, err
	}

	now := m.timeNow().UTC()
	result := &VerificationResult{CheckedAt: now}

	cert, err := m.repo.GetCertificate(sig.CertificateID)
	if err == ErrCertificateNotFound {
		result.Errors = append(result.Errors, fmt.Sprintf("certificate %s not found", sig.CertificateID))
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	// Cryptographic check against the leaf key.
	payload, err := encodePayload(sig.ObjectHash, sig.Signer, sig.CertificateID)
	if err != nil {
		return nil, err
	}
	pub, err := hex.DecodeString(cert.PublicKeyHex)
	if err != nil {
		result.Errors = append(result.Errors, "certificate public key is not valid hex")
	} else {
		raw, err := hex.DecodeString(sig.SignatureHex)
		if err != nil {
			result.Errors = append(result.Errors, "signature is not valid hex")
		} else if Verify(payload, raw, ed25519.PublicKey(pub)) {
			result.SignatureValid = true
		} else {
			result.Errors = append(result.Errors, "signature does not verify against certificate key")
		}
	}

	result.CertificateValid = m.checkCertificate(cert, now, result)
	result.ChainValid = m.walkChain(cert, now, result)
	result.TimestampValid = m.checkTimestamp(sig, result)

	result.Valid = result.SignatureValid && result.CertificateValid &&
		result.ChainValid && result.TimestampValid

	if m.recorder != nil {
		outcome := audit.OutcomeSuccess
		if !result.Valid {
			outcome = audit.OutcomeFailure
		}
		if _, err := m.recorder.Record(ctx, audit.Entry{
			Type:       audit.EventSignatureVerified,
			Actor:      sig.Signer,
			Action:     "verify_signature",
			ObjectHash: sig.ObjectHash,
			Outcome:    outcome,
			Details:    map[string]string{"signature_id": sig.ID},
		}); err != nil {
			return nil, fmt.Errorf("recording verification: %w", err)
		}
	}
	return result, nil
}

func (m *Manager) checkCertificate(cert *Certificate, now time.Time, result *VerificationResult) bool {
	switch {
	case cert.Status == StatusRevoked:
		result.Errors = append(result.Errors,
			fmt.Sprintf("certificate %s revoked: %s", cert.ID, cert.RevocationReason))
		return false
	case cert.Status == StatusPending:
		result.Errors = append(result.Errors, fmt.Sprintf("certificate %s is pending", cert.ID))
		return false
	case !cert.InWindow(now):
		result.Errors = append(result.Errors,
			fmt.Sprintf("certificate %s is outside its validity window", cert.ID))
		return false
	}
	return true
}

// walkChain follows issuer links from the leaf to a self-signed root,
// checking status and validity window at every link.
func (m *Manager) walkChain(leaf *Certificate, now time.Time, result *VerificationResult) bool {
	valid := true
	cert := leaf
	for depth := 0; ; depth++ {
		if depth >= maxChainDepth {
			result.Errors = append(result.Errors,
				fmt.Sprintf("certificate chain exceeds maximum depth %d", maxChainDepth))
			return false
		}
		result.Chain = append(result.Chain, cert.ID)

		// The leaf's own problems are already reported by checkCertificate.
		if depth > 0 && !m.checkCertificate(cert, now, result) {
			valid = false
		}
		if cert.IsRoot() {
			return valid
		}

		parent, err := m.repo.GetCertificate(cert.IssuerID)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("issuer certificate %s not found", cert.IssuerID))
			return false
		}
		cert = parent
	}
}

func (m *Manager) checkTimestamp(sig *ObjectSignature, result *VerificationResult) bool {
	if sig.Timestamp == nil {
		return true
	}
	ts := sig.Timestamp
	if ts.AuditEventID == "" || ts.SignatureID != sig.ID {
		result.Errors = append(result.Errors, "timestamp anchor is malformed")
		return false
	}
	if ts.AnchoredAt.After(m.timeNow().UTC()) {
		result.Errors = append(result.Errors, "timestamp anchor is in the future")
		return false
	}
	return true
}

// RevokeCertificate irreversibly marks a certificate revoked. Signatures
// depending on it, directly or through the chain, stop verifying.
func (m *Manager) RevokeCertificate(ctx context.Context, certID, reason string) error {
	cert, err := m.repo.GetCertificate(certID)
	if err != nil {
		return err
	}
	if cert.Status == StatusRevoked {
		return ErrCertificateRevoked
	}

	now := m.timeNow().UTC()
	cert.Status = StatusRevoked
	cert.RevocationReason = reason
	cert.RevokedAt = now
	if err := m.repo.PutCertificate(cert); err != nil {
		return fmt.Errorf("storing revocation: %w", err)
	}

	if m.recorder != nil {
		if _, err := m.recorder.Record(ctx, audit.Entry{
			Type:     audit.EventCertificateRevoked,
			Actor:    cert.Subject,
			Action:   "revoke_certificate",
			Outcome:  audit.OutcomeSuccess,
			Severity: audit.SeverityNotice,
			Details: map[string]string{
				"certificate_id": certID,
				"reason":         reason,
			},
		}); err != nil {
			return fmt.Errorf("recording revocation: %w", err)
		}
	}
	m.logger.Info("certificate revoked",
		slog.String("certificate_id", certID),
		slog.String("reason", reason))
	return nil
}

// GetCertificate returns a certificate by ID.
func (m *Manager) GetCertificate(ctx context.Context, certID string) (*Certificate, error) {
	return m.repo.GetCertificate(certID)
}

// SignaturesFor returns all signatures over an object.
func (m *Manager) SignaturesFor(ctx context.Context, objectHash string) ([]*ObjectSignature, error) {
	return m.repo.SignaturesByObject(objectHash)
}
