package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileRepository persists audit events as one JSON Lines file per daily
// chain under root/chains/. Events are loaded into an in-memory index at
// startup; appends go to both the index and disk. Each append stages the
// full chain file and renames it into place, so a crash mid-write never
// leaves a truncated line.
type FileRepository struct {
	root string
	mem  *InMemoryRepository
}

// NewFileRepository creates a file-backed audit repository rooted at dir,
// loading any existing chain files.
func NewFileRepository(dir string) (*FileRepository, error) {
	chainsDir := filepath.Join(dir, "chains")
	if err := os.MkdirAll(chainsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit chains directory: %w", err)
	}

	r := &FileRepository{
		root: dir,
		mem:  NewInMemoryRepository(),
	}
	if err := r.load(chainsDir); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) load(chainsDir string) error {
	entries, err := os.ReadDir(chainsDir)
	if err != nil {
		return fmt.Errorf("reading audit chains directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		names = append(names, entry.Name())
	}
	// Chain files are named by date, so lexical order is chronological.
	sort.Strings(names)

	for _, name := range names {
		if err := r.loadChainFile(filepath.Join(chainsDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileRepository) loadChainFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening audit chain file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return fmt.Errorf("parsing %s line %d: %w", path, line, err)
		}
		if err := r.mem.Append(context.Background(), &event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning audit chain file %s: %w", path, err)
	}
	return nil
}

func (r *FileRepository) chainPath(chainID string) string {
	return filepath.Join(r.root, "chains", chainID+".jsonl")
}

// Append stores an event in memory and on disk.
func (r *FileRepository) Append(ctx context.Context, event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}

	path := r.chainPath(event.ChainID)
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading audit chain file: %w", err)
	}

	staged := make([]byte, 0, len(existing)+len(line)+1)
	staged = append(staged, existing...)
	staged = append(staged, line...)
	staged = append(staged, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".audit-*")
	if err != nil {
		return fmt.Errorf("staging audit chain file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(staged); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing staged audit chain file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing staged audit chain file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing audit chain file: %w", err)
	}

	return r.mem.Append(ctx, event)
}

// LastEvent returns the most recently appended event of a chain.
func (r *FileRepository) LastEvent(ctx context.Context, chainID string) (*Event, error) {
	return r.mem.LastEvent(ctx, chainID)
}

// EventsByChain returns a chain's events in append order.
func (r *FileRepository) EventsByChain(ctx context.Context, chainID string) ([]*Event, error) {
	return r.mem.EventsByChain(ctx, chainID)
}

// EventsByActor returns events for an actor, newest first.
func (r *FileRepository) EventsByActor(ctx context.Context, actor string, limit int) ([]*Event, error) {
	return r.mem.EventsByActor(ctx, actor, limit)
}

// EventsByObject returns events referencing an object hash, newest first.
func (r *FileRepository) EventsByObject(ctx context.Context, objectHash string, limit int) ([]*Event, error) {
	return r.mem.EventsByObject(ctx, objectHash, limit)
}

// EventsByRange returns events with from <= Timestamp < to, in append order.
func (r *FileRepository) EventsByRange(ctx context.Context, from, to time.Time) ([]*Event, error) {
	return r.mem.EventsByRange(ctx, from, to)
}

// ChainIDs returns the identifiers of all chains, sorted ascending.
func (r *FileRepository) ChainIDs(ctx context.Context) ([]string, error) {
	return r.mem.ChainIDs(ctx)
}
