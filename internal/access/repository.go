package access

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Repository defines storage operations for access policies.
type Repository interface {
	// Put stores or replaces a policy.
	Put(policy *Policy) error

	// Get retrieves a policy by object hash. Returns ErrPolicyNotFound if
	// no policy exists.
	Get(objectHash string) (*Policy, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewInMemoryRepository creates a new in-memory policy repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{policies: make(map[string]*Policy)}
}

// Put stores or replaces a policy.
func (r *InMemoryRepository) Put(policy *Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[policy.ObjectHash] = copyPolicy(policy)
	return nil
}

// Get retrieves a policy by object hash.
func (r *InMemoryRepository) Get(objectHash string) (*Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policy, ok := r.policies[objectHash]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return copyPolicy(policy), nil
}

// copyPolicy returns a deep copy to prevent external modification.
func copyPolicy(p *Policy) *Policy {
	c := *p
	c.Grants = make([]Grant, len(p.Grants))
	copy(c.Grants, p.Grants)
	for i := range c.Grants {
		if c.Grants[i].Expiry != nil {
			expiry := *c.Grants[i].Expiry
			c.Grants[i].Expiry = &expiry
		}
	}
	return &c
}

// FileRepository persists policies as JSON files under root/policies/,
// one file per object hash. Writes are staged and renamed into place.
type FileRepository struct {
	root string
	mu   sync.Mutex
}

// NewFileRepository creates a file-backed policy repository rooted at dir.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Join(dir, "policies"), 0o755); err != nil {
		return nil, fmt.Errorf("creating policies directory: %w", err)
	}
	return &FileRepository{root: dir}, nil
}

func (r *FileRepository) policyPath(objectHash string) string {
	return filepath.Join(r.root, "policies", objectHash+".json")
}

// Put stores or replaces a policy.
func (r *FileRepository) Put(policy *Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(policy, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding policy: %w", err)
	}

	path := r.policyPath(policy.ObjectHash)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".policy-*")
	if err != nil {
		return fmt.Errorf("staging policy file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing policy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing policy file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing policy file: %w", err)
	}
	return nil
}

// Get retrieves a policy by object hash.
func (r *FileRepository) Get(objectHash string) (*Policy, error) {
	data, err := os.ReadFile(r.policyPath(objectHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	return &policy, nil
}
