// Package ip is the orchestrating façade over the content store and the
// provenance, license, attribution, and audit managers. Callers register,
// derive, and summarize objects here; the package owns cross-manager
// ordering and rolls back partial writes when a multi-step operation fails.
package ip

import (
	"errors"
	"fmt"

	"github.com/panini-fs/ipcore/internal/attribution"
	"github.com/panini-fs/ipcore/internal/provenance"
)

// Step names one stage of a multi-step operation.
type Step string

// Operation steps, in execution order.
const (
	StepStore         Step = "store"
	StepOrigin        Step = "origin"
	StepCompatibility Step = "compatibility"
	StepDerivation    Step = "derivation"
	StepLicense       Step = "license"
	StepAttribution   Step = "attribution"
	StepAudit         Step = "audit"
)

// ErrEmptyContent is returned when registering or deriving empty content.
var ErrEmptyContent = errors.New("content must not be empty")

// ErrAlreadyRecorded is returned when the content hash already carries
// committed IP state from an earlier registration or derivation. The
// existing records are left untouched.
var ErrAlreadyRecorded = errors.New("object already registered or derived")

// StepError wraps a failure in one stage of a multi-step operation, after
// any compensating rollback has run.
type StepError struct {
	Step       Step
	ObjectHash string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed for object %s: %v", e.Step, e.ObjectHash, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error { return e.Err }

// Summary aggregates an object's IP state across managers. Read-only.
type Summary struct {
	ObjectHash  string                       `json:"object_hash"`
	Chain       []provenance.ChainEntry      `json:"chain"`
	License     string                       `json:"license"`
	Attribution *attribution.Attribution     `json:"attribution"`
	Citations   map[attribution.Style]string `json:"citations"`
}
