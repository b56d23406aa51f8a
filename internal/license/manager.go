package license

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Repository defines the persistence interface for license assignments.
// Assignments are append-only; the newest one is authoritative.
type Repository interface {
	// AppendAssignment persists a license assignment.
	AppendAssignment(a *Assignment) error

	// Assignments returns the full assignment history for an object,
	// oldest first.
	Assignments(objectHash string) ([]Assignment, error)

	// DeleteAssignments removes the assignment history for an object. Used
	// only for compensating a failed multi-step registration; a no-op when
	// no history exists.
	DeleteAssignments(objectHash string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu          sync.RWMutex
	assignments map[string][]Assignment
}

// NewInMemoryRepository creates a new in-memory license repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		assignments: make(map[string][]Assignment),
	}
}

// AppendAssignment persists a license assignment.
func (r *InMemoryRepository) AppendAssignment(a *Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[a.ObjectHash] = append(r.assignments[a.ObjectHash], *a)
	return nil
}

// Assignments returns the assignment history for an object, oldest first.
func (r *InMemoryRepository) Assignments(objectHash string) ([]Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.assignments[objectHash]
	result := make([]Assignment, len(history))
	copy(result, history)
	return result, nil
}

// DeleteAssignments removes the assignment history for an object.
func (r *InMemoryRepository) DeleteAssignments(objectHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments, objectHash)
	return nil
}

// FileRepository persists assignment history as one JSON file per object
// under <root>/licenses/, mirrored in memory.
type FileRepository struct {
	root string
	mem  *InMemoryRepository
}

// NewFileRepository creates a file-backed license repository rooted at root,
// loading any existing records.
func NewFileRepository(root string) (*FileRepository, error) {
	r := &FileRepository{
		root: filepath.Join(root, "licenses"),
		mem:  NewInMemoryRepository(),
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating licenses directory: %w", err)
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("reading licenses directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading license record %s: %w", entry.Name(), err)
		}
		var history []Assignment
		if err := json.Unmarshal(data, &history); err != nil {
			return nil, fmt.Errorf("decoding license record %s: %w", entry.Name(), err)
		}
		for i := range history {
			if err := r.mem.AppendAssignment(&history[i]); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// AppendAssignment persists a license assignment.
func (r *FileRepository) AppendAssignment(a *Assignment) error {
	history, err := r.mem.Assignments(a.ObjectHash)
	if err != nil {
		return err
	}
	history = append(history, *a)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding license history: %w", err)
	}
	path := filepath.Join(r.root, a.ObjectHash+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persisting license history: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persisting license history: %w", err)
	}
	return r.mem.AppendAssignment(a)
}

// Assignments returns the assignment history for an object, oldest first.
func (r *FileRepository) Assignments(objectHash string) ([]Assignment, error) {
	return r.mem.Assignments(objectHash)
}

// DeleteAssignments removes the assignment history for an object.
func (r *FileRepository) DeleteAssignments(objectHash string) error {
	path := filepath.Join(r.root, objectHash+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing license history: %w", err)
	}
	return r.mem.DeleteAssignments(objectHash)
}

// Manager assigns licenses to objects and answers compatibility queries.
type Manager struct {
	repo    Repository
	logger  *slog.Logger
	timeNow func() time.Time
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

// NewManager creates a license manager over the given repository.
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

// ApplyLicense assigns a license to an object. The license ID must be in
// the registry; re-licensing appends to the object's history.
func (m *Manager) ApplyLicense(objectHash, licenseID, assignedBy string) (*Assignment, error) {
	if !Known(licenseID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLicense, licenseID)
	}

	a := &Assignment{
		ObjectHash: objectHash,
		LicenseID:  licenseID,
		AssignedBy: assignedBy,
		AssignedAt: m.timeNow().UTC(),
	}
	if err := m.repo.AppendAssignment(a); err != nil {
		return nil, fmt.Errorf("applying license: %w", err)
	}

	m.logger.Debug("license applied", "object", objectHash, "license", licenseID)
	result := *a
	return &result, nil
}

// VoidLicense removes an object's license history. Intended for
// compensating a failed multi-step registration, not general use.
func (m *Manager) VoidLicense(objectHash string) error {
	if err := m.repo.DeleteAssignments(objectHash); err != nil {
		return fmt.Errorf("voiding license: %w", err)
	}
	m.logger.Debug("license voided", "object", objectHash)
	return nil
}

// CurrentLicense returns the authoritative (newest) license for an object.
func (m *Manager) CurrentLicense(objectHash string) (string, error) {
	history, err := m.repo.Assignments(objectHash)
	if err != nil {
		return "", fmt.Errorf("loading license history: %w", err)
	}
	if len(history) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoLicense, objectHash)
	}
	return history[len(history)-1].LicenseID, nil
}

// History returns the full license history for an object, oldest first.
func (m *Manager) History(objectHash string) ([]Assignment, error) {
	return m.repo.Assignments(objectHash)
}

// CompositeFor computes the composite license for a derivation from the
// given parent objects. Fails with ConflictError when no composite exists.
func (m *Manager) CompositeFor(parentHashes []string) (string, error) {
	ids := make([]string, 0, len(parentHashes))
	for _, parent := range parentHashes {
		id, err := m.CurrentLicense(parent)
		if err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	return ComputeComposite(ids)
}
