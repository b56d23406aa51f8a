package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileRepository persists provenance records as one JSON file per entity
// under <root>/provenance/: origins keyed by object hash, events keyed by
// event ID with a per-child index directory. All records are loaded into an
// InMemoryRepository at construction; writes go to disk first, then to the
// in-memory mirror, so a failed write never leaves the mirror ahead of disk.
type FileRepository struct {
	root string
	mem  *InMemoryRepository
}

// NewFileRepository creates a file-backed provenance repository rooted at
// root, loading any existing records.
func NewFileRepository(root string) (*FileRepository, error) {
	r := &FileRepository{
		root: filepath.Join(root, "provenance"),
		mem:  NewInMemoryRepository(),
	}
	for _, dir := range []string{"origins", "events"} {
		if err := os.MkdirAll(filepath.Join(r.root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating provenance directory: %w", err)
		}
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load replays persisted records into the in-memory mirror.
func (r *FileRepository) load() error {
	origins, err := os.ReadDir(filepath.Join(r.root, "origins"))
	if err != nil {
		return fmt.Errorf("reading origins directory: %w", err)
	}
	var loaded []Origin
	for _, entry := range origins {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.root, "origins", entry.Name()))
		if err != nil {
			return fmt.Errorf("reading origin record %s: %w", entry.Name(), err)
		}
		var o Origin
		if err := json.Unmarshal(data, &o); err != nil {
			return fmt.Errorf("decoding origin record %s: %w", entry.Name(), err)
		}
		loaded = append(loaded, o)
	}
	// Replay in recording order so ordered queries behave as if the
	// process never restarted.
	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].RecordedAt.Before(loaded[j].RecordedAt)
	})
	for i := range loaded {
		if err := r.mem.PutOrigin(&loaded[i]); err != nil {
			return err
		}
	}

	events, err := os.ReadDir(filepath.Join(r.root, "events"))
	if err != nil {
		return fmt.Errorf("reading events directory: %w", err)
	}
	for _, entry := range events {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.root, "events", entry.Name()))
		if err != nil {
			return fmt.Errorf("reading event record %s: %w", entry.Name(), err)
		}
		var e EvolutionEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decoding event record %s: %w", entry.Name(), err)
		}
		if err := r.mem.PutEvent(&e); err != nil {
			return err
		}
	}
	return nil
}

// writeJSON writes v to path atomically (temp file + rename).
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// PutOrigin persists an origin record.
func (r *FileRepository) PutOrigin(origin *Origin) error {
	path := filepath.Join(r.root, "origins", origin.ObjectHash+".json")
	if err := writeJSON(path, origin); err != nil {
		return fmt.Errorf("persisting origin: %w", err)
	}
	return r.mem.PutOrigin(origin)
}

// GetOrigin retrieves the origin for an object, or nil if none exists.
func (r *FileRepository) GetOrigin(objectHash string) (*Origin, error) {
	return r.mem.GetOrigin(objectHash)
}

// PutEvent persists a derivation event.
func (r *FileRepository) PutEvent(event *EvolutionEvent) error {
	path := filepath.Join(r.root, "events", event.ID+".json")
	if err := writeJSON(path, event); err != nil {
		return fmt.Errorf("persisting derivation event: %w", err)
	}
	return r.mem.PutEvent(event)
}

// EventsByChild returns all events whose child is the given object.
func (r *FileRepository) EventsByChild(objectHash string) ([]EvolutionEvent, error) {
	return r.mem.EventsByChild(objectHash)
}

// EventsByParent returns all events whose parent is the given object.
func (r *FileRepository) EventsByParent(objectHash string) ([]EvolutionEvent, error) {
	return r.mem.EventsByParent(objectHash)
}

// DeleteOrigin removes the origin record for an object.
func (r *FileRepository) DeleteOrigin(objectHash string) error {
	path := filepath.Join(r.root, "origins", objectHash+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing origin: %w", err)
	}
	return r.mem.DeleteOrigin(objectHash)
}

// DeleteEventsByChild removes all derivation events whose child is the
// given object.
func (r *FileRepository) DeleteEventsByChild(childHash string) error {
	events, err := r.mem.EventsByChild(childHash)
	if err != nil {
		return err
	}
	for _, e := range events {
		path := filepath.Join(r.root, "events", e.ID+".json")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing derivation event: %w", err)
		}
	}
	return r.mem.DeleteEventsByChild(childHash)
}

// OriginsByCreator returns the object hashes originated by a creator.
func (r *FileRepository) OriginsByCreator(creator string) ([]string, error) {
	return r.mem.OriginsByCreator(creator)
}

// OriginsInRange returns object hashes with origins recorded in [start, end).
func (r *FileRepository) OriginsInRange(start, end time.Time) ([]string, error) {
	return r.mem.OriginsInRange(start, end)
}
