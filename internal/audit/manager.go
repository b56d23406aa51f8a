package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager records events into daily hash chains and verifies their
// integrity. Appends to the same chain are serialized by a per-chain mutex
// so the previous-hash linkage is never raced.
type Manager struct {
	repo    Repository
	logger  *slog.Logger
	metrics *Metrics
	timeNow func() time.Time

	mu         sync.Mutex
	chainLocks map[string]*sync.Mutex
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

// WithMetrics attaches Prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
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

// NewManager creates an audit manager backed by repo.
func NewManager(repo Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:       repo,
		logger:     slog.Default(),
		timeNow:    time.Now,
		chainLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) chainLock(chainID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.chainLocks[chainID]
	if !ok {
		lock = &sync.Mutex{}
		m.chainLocks[chainID] = lock
	}
	return lock
}

// Record appends an event to the current daily chain and returns the stored
// event with its ID and linkage filled in. Severity defaults from the
// outcome when unset: denied is a warning, error is an error, everything
// else is informational.
func (m *Manager) Record(ctx context.Context, entry Entry) (*Event, error) {
	if entry.Type == "" || entry.Actor == "" || entry.Action == "" {
		return nil, ErrInvalidEntry
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomeSuccess
	}
	if entry.Severity == "" {
		entry.Severity = defaultSeverity(entry.Outcome)
	}

	start := m.timeNow()
	timestamp := start.UTC()
	chainID := ChainIDFor(timestamp)

	lock := m.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	last, err := m.repo.LastEvent(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("loading chain tail: %w", err)
	}
	previousHash := ""
	if last != nil {
		previousHash = last.EventID
	}

	event := &Event{
		ChainID:      chainID,
		PreviousHash: previousHash,
		Type:         entry.Type,
		Actor:        entry.Actor,
		Action:       entry.Action,
		ObjectHash:   entry.ObjectHash,
		Outcome:      entry.Outcome,
		Severity:     entry.Severity,
		Timestamp:    timestamp,
		Details:      entry.Details,
		Metadata:     entry.Metadata,
	}
	event.EventID, err = ComputeEventID(event)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("appending audit event: %w", err)
	}

	if m.metrics != nil {
		m.metrics.IncEventsRecorded(event.Type, event.Outcome)
		m.metrics.ObserveAppendDuration(time.Since(start).Seconds())
	}
	m.logger.Debug("audit event recorded",
		slog.String("event_id", event.EventID),
		slog.String("chain_id", event.ChainID),
		slog.String("type", string(event.Type)),
		slog.String("actor", event.Actor),
		slog.String("outcome", string(event.Outcome)))

	return copyEvent(event), nil
}

// VerifyChain recomputes every event hash in a chain and checks the
// previous-hash linkage. It returns false plus the ID of the first
// offending event when the chain fails verification; the error return is
// reserved for storage failures.
func (m *Manager) VerifyChain(ctx context.Context, chainID string) (bool, string, error) {
	events, err := m.repo.EventsByChain(ctx, chainID)
	if err != nil {
		return false, "", fmt.Errorf("loading chain %s: %w", chainID, err)
	}
	if len(events) == 0 {
		return false, "", fmt.Errorf("%w: %s", ErrUnknownChain, chainID)
	}

	previousHash := ""
	for _, event := range events {
		if event.PreviousHash != previousHash {
			m.recordVerifyFailure(chainID, event.EventID, "broken previous-hash link")
			return false, event.EventID, nil
		}
		computed, err := ComputeEventID(event)
		if err != nil {
			return false, "", err
		}
		if computed != event.EventID {
			m.recordVerifyFailure(chainID, event.EventID, "event hash mismatch")
			return false, event.EventID, nil
		}
		previousHash = event.EventID
	}
	return true, "", nil
}

// VerifyAll verifies every chain in the repository. It returns the first
// failing chain and event, or ("", "") when all chains verify.
func (m *Manager) VerifyAll(ctx context.Context) (string, string, error) {
	chainIDs, err := m.repo.ChainIDs(ctx)
	if err != nil {
		return "", "", err
	}
	for _, chainID := range chainIDs {
		ok, eventID, err := m.VerifyChain(ctx, chainID)
		if err != nil {
			return "", "", err
		}
		if !ok {
			return chainID, eventID, nil
		}
	}
	return "", "", nil
}

func (m *Manager) recordVerifyFailure(chainID, eventID, reason string) {
	if m.metrics != nil {
		m.metrics.IncChainVerifyFailures()
	}
	m.logger.Error("audit chain verification failed",
		slog.String("chain_id", chainID),
		slog.String("event_id", eventID),
		slog.String("reason", reason))
}

// QueryByActor returns events for an actor, newest first.
func (m *Manager) QueryByActor(ctx context.Context, actor string, limit int) ([]*Event, error) {
	return m.repo.EventsByActor(ctx, actor, limit)
}

// QueryByObject returns events referencing an object hash, newest first.
func (m *Manager) QueryByObject(ctx context.Context, objectHash string, limit int) ([]*Event, error) {
	return m.repo.EventsByObject(ctx, objectHash, limit)
}

// QueryByDate returns the events of a single daily chain in append order.
func (m *Manager) QueryByDate(ctx context.Context, date time.Time) ([]*Event, error) {
	return m.repo.EventsByChain(ctx, ChainIDFor(date))
}

// QueryInRange returns events with from <= Timestamp < to, in append order,
// optionally narrowed to one event type. An empty eventType matches all.
func (m *Manager) QueryInRange(ctx context.Context, from, to time.Time, eventType EventType) ([]*Event, error) {
	events, err := m.repo.EventsByRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if eventType == "" {
		return events, nil
	}

	filtered := events[:0]
	for _, event := range events {
		if event.Type == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

// GenerateComplianceReport tallies events recorded in [from, to).
func (m *Manager) GenerateComplianceReport(ctx context.Context, from, to time.Time) (*ComplianceReport, error) {
	events, err := m.repo.EventsByRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading events for report: %w", err)
	}

	report := &ComplianceReport{
		From:       from,
		To:         to,
		Total:      len(events),
		ByOutcome:  make(map[Outcome]int),
		BySeverity: make(map[Severity]int),
		ByType:     make(map[EventType]int),
	}
	for _, event := range events {
		report.ByOutcome[event.Outcome]++
		report.BySeverity[event.Severity]++
		report.ByType[event.Type]++
	}
	return report, nil
}

func defaultSeverity(outcome Outcome) Severity {
	switch outcome {
	case OutcomeDenied:
		return SeverityWarning
	case OutcomeError:
		return SeverityError
	case OutcomeFailure:
		return SeverityNotice
	default:
		return SeverityInfo
	}
}
