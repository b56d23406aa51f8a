package health

import (
	"context"
	"fmt"

	"github.com/panini-fs/ipcore/internal/cas"
)

// StoreChecker implements health checking for the content-addressed object store.
type StoreChecker struct {
	store cas.Store
}

// probeHash is the hash of empty content. The store is not expected to hold
// it; the check only needs the existence lookup to reach the backend.
var probeHash = cas.HashContent(nil)

// NewStoreChecker creates a new object store health checker.
func NewStoreChecker(store cas.Store) *StoreChecker {
	return &StoreChecker{
		store: store,
	}
}

// HealthCheck performs a health check on the object store by probing for a
// known hash. The probe succeeds whether or not the object exists; only a
// backend error fails the check.
func (s *StoreChecker) HealthCheck(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("object store not configured")
	}
	if _, err := s.store.Has(ctx, probeHash); err != nil {
		return fmt.Errorf("object store probe: %w", err)
	}
	return nil
}
