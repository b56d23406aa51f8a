package attribution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Repository defines the persistence interface for attributions.
type Repository interface {
	// Put persists an attribution, replacing any existing record for the
	// same object.
	Put(a *Attribution) error

	// Get retrieves the attribution for an object, or nil if none exists.
	Get(objectHash string) (*Attribution, error)

	// Delete removes the attribution for an object. Used only for
	// compensating a failed multi-step registration; a no-op when no
	// attribution exists.
	Delete(objectHash string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu           sync.RWMutex
	attributions map[string]*Attribution
}

// NewInMemoryRepository creates a new in-memory attribution repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		attributions: make(map[string]*Attribution),
	}
}

// Put persists an attribution.
func (r *InMemoryRepository) Put(a *Attribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *a
	stored.Contributors = make([]Contributor, len(a.Contributors))
	copy(stored.Contributors, a.Contributors)
	r.attributions[a.ObjectHash] = &stored
	return nil
}

// Get retrieves the attribution for an object, or nil if none exists.
func (r *InMemoryRepository) Get(objectHash string) (*Attribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.attributions[objectHash]
	if !ok {
		return nil, nil
	}
	result := *a
	result.Contributors = make([]Contributor, len(a.Contributors))
	copy(result.Contributors, a.Contributors)
	return &result, nil
}

// Delete removes the attribution for an object.
func (r *InMemoryRepository) Delete(objectHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attributions, objectHash)
	return nil
}

// FileRepository persists attributions as one JSON file per object under
// <root>/attributions/, mirrored in memory.
type FileRepository struct {
	root string
	mem  *InMemoryRepository
}

// NewFileRepository creates a file-backed attribution repository rooted at
// root, loading any existing records.
func NewFileRepository(root string) (*FileRepository, error) {
	r := &FileRepository{
		root: filepath.Join(root, "attributions"),
		mem:  NewInMemoryRepository(),
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating attributions directory: %w", err)
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("reading attributions directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading attribution record %s: %w", entry.Name(), err)
		}
		var a Attribution
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decoding attribution record %s: %w", entry.Name(), err)
		}
		if err := r.mem.Put(&a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put persists an attribution.
func (r *FileRepository) Put(a *Attribution) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding attribution: %w", err)
	}
	path := filepath.Join(r.root, a.ObjectHash+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persisting attribution: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persisting attribution: %w", err)
	}
	return r.mem.Put(a)
}

// Get retrieves the attribution for an object, or nil if none exists.
func (r *FileRepository) Get(objectHash string) (*Attribution, error) {
	return r.mem.Get(objectHash)
}

// Delete removes the attribution for an object.
func (r *FileRepository) Delete(objectHash string) error {
	path := filepath.Join(r.root, objectHash+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing attribution: %w", err)
	}
	return r.mem.Delete(objectHash)
}
