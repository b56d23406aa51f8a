package ip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/panini-fs/ipcore/internal/attribution"
	"github.com/panini-fs/ipcore/internal/audit"
	"github.com/panini-fs/ipcore/internal/cas"
	"github.com/panini-fs/ipcore/internal/license"
	"github.com/panini-fs/ipcore/internal/provenance"
	"github.com/panini-fs/ipcore/internal/tracing"
)

// Recorder appends audit events. Satisfied by *audit.Manager.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (*audit.Event, error)
}

// Manager coordinates the content store and the per-concern managers. All
// mutating operations on one object hash are serialized through a keyed
// mutex; reads are lock-free.
type Manager struct {
	store        cas.Store
	provenance   *provenance.Manager
	licenses     *license.Manager
	attributions *attribution.Manager
	recorder     Recorder
	cache        SummaryCache
	logger       *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
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

// WithSummaryCache wires a read-through cache into the summary path.
func WithSummaryCache(cache SummaryCache) ManagerOption {
	return func(m *Manager) {
		m.cache = cache
	}
}

// NewManager creates the orchestrator over the given store and managers.
func NewManager(
	store cas.Store,
	prov *provenance.Manager,
	lic *license.Manager,
	attr *attribution.Manager,
	recorder Recorder,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		store:        store,
		provenance:   prov,
		licenses:     lic,
		attributions: attr,
		recorder:     recorder,
		logger:       slog.Default(),
		locks:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockFor returns the mutex serializing mutations of one object hash.
// Locks are never evicted: the map grows with the number of distinct
// hashes mutated over the process lifetime, one mutex per object.
func (m *Manager) lockFor(hash string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[hash]
	if !ok {
		l = &sync.Mutex{}
		m.locks[hash] = l
	}
	return l
}

// hasCommittedState reports whether the hash finished an earlier register
// or derive saga. Attribution is written last in both, so its presence
// marks a committed object.
func (m *Manager) hasCommittedState(hash string) (bool, error) {
	if _, err := m.attributions.GetAttribution(hash); err != nil {
		if errors.Is(err, attribution.ErrNoAttribution) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RegisterObject stores content and records its origin, license, and
// attribution, then audits the registration. The steps after the store
// write are atomic from the caller's perspective: a failure rolls back the
// records already written and surfaces a StepError naming the failed step.
func (m *Manager) RegisterObject(
	ctx context.Context,
	content []byte,
	creator, licenseID string,
	sourceType provenance.SourceType,
) (hash string, err error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}

	hash = cas.HashContent(content)

	ctx, endSpan := tracing.StartSpan(ctx, "register_object")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("object_hash", hash),
		attribute.String("actor", creator),
	)

	lock := m.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	// Refuse before any write when the hash already finished a register or
	// derive saga, so a duplicate call never reaches compensation and the
	// committed records stay intact.
	committed, err := m.hasCommittedState(hash)
	if err != nil {
		return "", &StepError{Step: StepOrigin, ObjectHash: hash, Err: err}
	}
	if committed {
		cause := error(ErrAlreadyRecorded)
		if _, oerr := m.provenance.GetOrigin(hash); oerr == nil {
			cause = provenance.ErrDuplicateOrigin
		}
		return "", &StepError{Step: StepOrigin, ObjectHash: hash, Err: fmt.Errorf("%w: %s", cause, hash)}
	}

	if _, err := m.store.Put(ctx, content); err != nil {
		return "", &StepError{Step: StepStore, ObjectHash: hash, Err: err}
	}

	if _, err := m.provenance.RecordOrigin(hash, sourceType, creator); err != nil {
		// Nothing to roll back: the stored bytes stay, content
		// addressing makes the write idempotent.
		return "", &StepError{Step: StepOrigin, ObjectHash: hash, Err: err}
	}

	if _, err := m.licenses.ApplyLicense(hash, licenseID, creator); err != nil {
		m.compensate(ctx, hash, creator, "register_object", rollback{origin: true})
		return "", &StepError{Step: StepLicense, ObjectHash: hash, Err: err}
	}

	contributors := []attribution.Contributor{{
		Identity:         creator,
		Role:             attribution.RoleCreator,
		CreditShare:      1.0,
		ContributionType: "original",
	}}
	if _, err := m.attributions.CreateAttribution(hash, "content", contributors); err != nil {
		m.compensate(ctx, hash, creator, "register_object", rollback{origin: true, license: true})
		return "", &StepError{Step: StepAttribution, ObjectHash: hash, Err: err}
	}

	_, err = m.recorder.Record(ctx, audit.Entry{
		Type:       audit.EventObjectCreated,
		Actor:      creator,
		Action:     "register_object",
		ObjectHash: hash,
		Details: map[string]string{
			"license":     licenseID,
			"source_type": string(sourceType),
		},
	})
	if err != nil {
		m.compensate(ctx, hash, creator, "register_object",
			rollback{origin: true, license: true, attribution: true})
		return "", &StepError{Step: StepAudit, ObjectHash: hash, Err: err}
	}

	m.invalidate(ctx, hash)
	m.logger.Info("object registered",
		"object", hash, "creator", creator, "license", licenseID)
	return hash, nil
}

// DeriveObject stores derived content, checks license compatibility across
// the parents, and records the derivation, composite license, and inherited
// attribution. An incompatible parent set aborts before any provenance or
// license write and is itself audited as a conflict.
func (m *Manager) DeriveObject(
	ctx context.Context,
	parentHashes []string,
	content []byte,
	deriver string,
) (hash string, err error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}
	if len(parentHashes) == 0 {
		return "", provenance.ErrNoParents
	}

	hash = cas.HashContent(content)

	ctx, endSpan := tracing.StartSpan(ctx, "derive_object")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("object_hash", hash),
		attribute.String("actor", deriver),
		attribute.Int("parents", len(parentHashes)),
	)

	lock := m.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	// A child hash with committed IP state must not be derived again: the
	// later steps would fail on the duplicate and compensation would void
	// the records the first derivation wrote.
	committed, err := m.hasCommittedState(hash)
	if err != nil {
		return "", &StepError{Step: StepDerivation, ObjectHash: hash, Err: err}
	}
	if committed {
		return "", &StepError{Step: StepDerivation, ObjectHash: hash,
			Err: fmt.Errorf("%w: %s", ErrAlreadyRecorded, hash)}
	}

	if _, err := m.store.Put(ctx, content); err != nil {
		return "", &StepError{Step: StepStore, ObjectHash: hash, Err: err}
	}

	composite, err := m.licenses.CompositeFor(parentHashes)
	if err != nil {
		m.recordConflict(ctx, hash, deriver, parentHashes, err)
		return "", &StepError{Step: StepCompatibility, ObjectHash: hash, Err: err}
	}

	if _, err := m.provenance.RecordDerivation(parentHashes, hash, provenance.RelDerivesFrom, deriver); err != nil {
		return "", &StepError{Step: StepDerivation, ObjectHash: hash, Err: err}
	}

	if _, err := m.licenses.ApplyLicense(hash, composite, deriver); err != nil {
		m.compensate(ctx, hash, deriver, "derive_object", rollback{derivation: true})
		return "", &StepError{Step: StepLicense, ObjectHash: hash, Err: err}
	}

	if _, err := m.attributions.InheritAttribution(parentHashes, hash, "content", deriver); err != nil {
		m.compensate(ctx, hash, deriver, "derive_object",
			rollback{derivation: true, license: true})
		return "", &StepError{Step: StepAttribution, ObjectHash: hash, Err: err}
	}

	_, err = m.recorder.Record(ctx, audit.Entry{
		Type:       audit.EventDerivationRecorded,
		Actor:      deriver,
		Action:     "derive_object",
		ObjectHash: hash,
		Details: map[string]string{
			"license": composite,
			"parents": strings.Join(parentHashes, ","),
		},
	})
	if err != nil {
		m.compensate(ctx, hash, deriver, "derive_object",
			rollback{derivation: true, license: true, attribution: true})
		return "", &StepError{Step: StepAudit, ObjectHash: hash, Err: err}
	}

	m.invalidate(ctx, append([]string{hash}, parentHashes...)...)
	m.logger.Info("object derived",
		"object", hash, "deriver", deriver, "license", composite, "parents", len(parentHashes))
	return hash, nil
}

// GetFullIPSummary aggregates provenance, license, attribution, and
// citations for an object. Pure read; served from the cache when one is
// wired and warm.
func (m *Manager) GetFullIPSummary(ctx context.Context, objectHash string) (summary *Summary, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "get_full_ip_summary")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx, attribute.String("object_hash", objectHash))

	if m.cache != nil {
		cached, ok, err := m.cache.Get(ctx, objectHash)
		if err != nil {
			m.logger.Warn("summary cache read failed", "object", objectHash, "error", err)
		} else if ok {
			tracing.AddEvent(ctx, "cache_hit")
			return cached, nil
		}
	}

	chain, err := m.provenance.GetChain(objectHash)
	if err != nil {
		return nil, fmt.Errorf("loading provenance chain: %w", err)
	}

	current, err := m.licenses.CurrentLicense(objectHash)
	if err != nil {
		return nil, err
	}

	attr, err := m.attributions.GetAttribution(objectHash)
	if err != nil {
		return nil, err
	}

	citations := make(map[attribution.Style]string, len(attribution.ValidStyles))
	for style := range attribution.ValidStyles {
		rendered, err := m.attributions.GenerateCitation(objectHash, style)
		if err != nil {
			return nil, fmt.Errorf("rendering %s citation: %w", style, err)
		}
		citations[style] = rendered
	}

	summary = &Summary{
		ObjectHash:  objectHash,
		Chain:       chain,
		License:     current,
		Attribution: attr,
		Citations:   citations,
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, summary); err != nil {
			m.logger.Warn("summary cache write failed", "object", objectHash, "error", err)
		}
	}
	return summary, nil
}

// rollback selects which recorded steps a compensation pass undoes.
type rollback struct {
	origin      bool
	derivation  bool
	license     bool
	attribution bool
}

// compensate undoes recorded steps in reverse write order and emits an
// integrity audit event. Compensation is best effort: failures are logged,
// never surfaced over the original error.
func (m *Manager) compensate(ctx context.Context, objectHash, actor, action string, rb rollback) {
	if rb.attribution {
		if err := m.attributions.RemoveAttribution(objectHash); err != nil {
			m.logger.Error("rolling back attribution", "object", objectHash, "error", err)
		}
	}
	if rb.license {
		if err := m.licenses.VoidLicense(objectHash); err != nil {
			m.logger.Error("rolling back license", "object", objectHash, "error", err)
		}
	}
	if rb.derivation {
		if err := m.provenance.RetractDerivation(objectHash); err != nil {
			m.logger.Error("rolling back derivation", "object", objectHash, "error", err)
		}
	}
	if rb.origin {
		if err := m.provenance.RetractOrigin(objectHash); err != nil {
			m.logger.Error("rolling back origin", "object", objectHash, "error", err)
		}
	}

	if _, err := m.recorder.Record(ctx, audit.Entry{
		Type:       audit.EventIntegrityCheck,
		Actor:      actor,
		Action:     action,
		ObjectHash: objectHash,
		Outcome:    audit.OutcomeFailure,
		Severity:   audit.SeverityCritical,
		Details:    map[string]string{"rolled_back": "true"},
	}); err != nil {
		m.logger.Error("recording rollback audit event", "object", objectHash, "error", err)
	}
}

// recordConflict audits a license compatibility failure during derivation.
func (m *Manager) recordConflict(ctx context.Context, objectHash, actor string, parents []string, cause error) {
	if _, err := m.recorder.Record(ctx, audit.Entry{
		Type:       audit.EventLicenseConflict,
		Actor:      actor,
		Action:     "derive_object",
		ObjectHash: objectHash,
		Outcome:    audit.OutcomeFailure,
		Details: map[string]string{
			"parents": strings.Join(parents, ","),
			"count":   strconv.Itoa(len(parents)),
			"cause":   cause.Error(),
		},
	}); err != nil {
		m.logger.Error("recording license conflict", "object", objectHash, "error", err)
	}
}

// invalidate drops cached summaries for the given objects, when caching is
// wired.
func (m *Manager) invalidate(ctx context.Context, objectHashes ...string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, objectHashes...); err != nil {
		m.logger.Warn("summary cache invalidation failed", "error", err)
	}
}
