package signature

import (
	"sync"
)

// Repository defines storage operations for certificates and signatures.
type Repository interface {
	// PutCertificate stores or replaces a certificate.
	PutCertificate(cert *Certificate) error

	// GetCertificate retrieves a certificate by ID. Returns
	// ErrCertificateNotFound if it does not exist.
	GetCertificate(certID string) (*Certificate, error)

	// CertificatesBySubject returns a subject's certificates in issue order.
	CertificatesBySubject(subject string) ([]*Certificate, error)

	// PutSignature stores a signature.
	PutSignature(sig *ObjectSignature) error

	// GetSignature retrieves a signature by ID. Returns
	// ErrSignatureNotFound if it does not exist.
	GetSignature(sigID string) (*ObjectSignature, error)

	// SignaturesByObject returns all signatures over an object in signing
	// order.
	SignaturesByObject(objectHash string) ([]*ObjectSignature, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu         sync.RWMutex
	certs      map[string]*Certificate
	bySubject  map[string][]string
	signatures map[string]*ObjectSignature
	byObject   map[string][]string
}

// NewInMemoryRepository creates a new in-memory signature repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		certs:      make(map[string]*Certificate),
		bySubject:  make(map[string][]string),
		signatures: make(map[string]*ObjectSignature),
		byObject:   make(map[string][]string),
	}
}

// PutCertificate stores or replaces a certificate.
func (r *InMemoryRepository) PutCertificate(cert *Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.certs[cert.ID]; !exists {
		r.bySubject[cert.Subject] = append(r.bySubject[cert.Subject], cert.ID)
	}
	certCopy := *cert
	r.certs[cert.ID] = &certCopy
	return nil
}

// GetCertificate retrieves a certificate by ID.
func (r *InMemoryRepository) GetCertificate(certID string) (*Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cert, ok := r.certs[certID]
	if !ok {
		return nil, ErrCertificateNotFound
	}
	certCopy := *cert
	return &certCopy, nil
}

// CertificatesBySubject returns a subject's certificates in issue order.
func (r *InMemoryRepository) CertificatesBySubject(subject string) ([]*Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bySubject[subject]
	results := make([]*Certificate, 0, len(ids))
	for _, id := range ids {
		certCopy := *r.certs[id]
		results = append(results, &certCopy)
	}
	return results, nil
}

// PutSignature stores a signature.
func (r *InMemoryRepository) PutSignature(sig *ObjectSignature) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.signatures[sig.ID]; !exists {
		r.byObject[sig.ObjectHash] = append(r.byObject[sig.ObjectHash], sig.ID)
	}
	r.signatures[sig.ID] = copySignature(sig)
	return nil
}

// GetSignature retrieves a signature by ID.
func (r *InMemoryRepository) GetSignature(sigID string) (*ObjectSignature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sig, ok := r.signatures[sigID]
	if !ok {
		return nil, ErrSignatureNotFound
	}
	return copySignature(sig), nil
}

// SignaturesByObject returns all signatures over an object in signing order.
func (r *InMemoryRepository) SignaturesByObject(objectHash string) ([]*ObjectSignature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byObject[objectHash]
	results := make([]*ObjectSignature, 0, len(ids))
	for _, id := range ids {
		results = append(results, copySignature(r.signatures[id]))
	}
	return results, nil
}

// copySignature returns a deep copy to prevent external modification.
func copySignature(sig *ObjectSignature) *ObjectSignature {
	c := *sig
	if sig.Timestamp != nil {
		ts := *sig.Timestamp
		c.Timestamp = &ts
	}
	return &c
}
