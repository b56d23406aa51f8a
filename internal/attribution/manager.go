package attribution

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Manager creates, amends, and inherits attributions.
type Manager struct {
	repo    Repository
	policy  Policy
	origins OriginSource
	logger  *slog.Logger
	timeNow func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPolicy sets the credit-redistribution policy.
func WithPolicy(p Policy) ManagerOption {
	return func(m *Manager) {
		if p.DeriverShare >= 0 && p.DeriverShare <= 0.5 {
			m.policy = p
		}
	}
}

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

// NewManager creates an attribution manager over the given repository.
func NewManager(repo Repository, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		policy:  DefaultPolicy,
		logger:  slog.Default(),
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateAttribution records the initial contributor list for an object.
// Fails with InvalidCreditShareError when shares sum above 1.0, and with
// ErrDuplicateAttribution when the object already has one.
func (m *Manager) CreateAttribution(objectHash, objectType string, contributors []Contributor) (*Attribution, error) {
	if len(contributors) == 0 {
		return nil, ErrNoContributors
	}
	for _, c := range contributors {
		if !ValidRoles[c.Role] {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, c.Role)
		}
	}
	if err := validateShares(objectHash, contributors); err != nil {
		return nil, err
	}

	existing, err := m.repo.Get(objectHash)
	if err != nil {
		return nil, fmt.Errorf("checking existing attribution: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAttribution, objectHash)
	}

	now := m.timeNow().UTC()
	a := &Attribution{
		ObjectHash:   objectHash,
		ObjectType:   objectType,
		Contributors: make([]Contributor, len(contributors)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	copy(a.Contributors, contributors)
	for i := range a.Contributors {
		if a.Contributors[i].AddedAt.IsZero() {
			a.Contributors[i].AddedAt = now
		}
	}

	if err := m.repo.Put(a); err != nil {
		return nil, fmt.Errorf("creating attribution: %w", err)
	}

	m.logger.Debug("attribution created", "object", objectHash, "contributors", len(contributors))
	result := *a
	return &result, nil
}

// AddContribution appends a contributor entry to an existing attribution.
// The new entry's share must keep the object's total at or below 1.0.
func (m *Manager) AddContribution(objectHash, identity string, role Role, contributionType string, share float64) (*Attribution, error) {
	if !ValidRoles[role] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	a, err := m.repo.Get(objectHash)
	if err != nil {
		return nil, fmt.Errorf("loading attribution: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAttribution, objectHash)
	}

	now := m.timeNow().UTC()
	updated := a.Contributors
	updated = append(updated, Contributor{
		Identity:         identity,
		Role:             role,
		CreditShare:      share,
		ContributionType: contributionType,
		AddedAt:          now,
	})
	if err := validateShares(objectHash, updated); err != nil {
		return nil, err
	}

	a.Contributors = updated
	a.UpdatedAt = now
	if err := m.repo.Put(a); err != nil {
		return nil, fmt.Errorf("adding contribution: %w", err)
	}
	result := *a
	return &result, nil
}

// GetAttribution returns the attribution for an object.
func (m *Manager) GetAttribution(objectHash string) (*Attribution, error) {
	a, err := m.repo.Get(objectHash)
	if err != nil {
		return nil, fmt.Errorf("loading attribution: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAttribution, objectHash)
	}
	return a, nil
}

// RemoveAttribution removes an object's attribution. Intended for
// compensating a failed multi-step registration, not general use.
func (m *Manager) RemoveAttribution(objectHash string) error {
	if err := m.repo.Delete(objectHash); err != nil {
		return fmt.Errorf("removing attribution: %w", err)
	}
	m.logger.Debug("attribution removed", "object", objectHash)
	return nil
}

// InheritAttribution builds the attribution for a derived object. The
// policy's deriver share is reserved for the deriving actor; the remainder
// is split equally across parents and scaled by each parent's internal
// shares (normalized so a partially attributed parent still passes its full
// slice on). Identical identities appearing via multiple parents are merged
// by summing their shares.
func (m *Manager) InheritAttribution(parentHashes []string, childHash, childType, deriver string) (*Attribution, error) {
	if len(parentHashes) == 0 {
		return nil, ErrNoParents
	}

	existing, err := m.repo.Get(childHash)
	if err != nil {
		return nil, fmt.Errorf("checking existing attribution: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAttribution, childHash)
	}

	parentWeight := (1.0 - m.policy.DeriverShare) / float64(len(parentHashes))
	inherited := make(map[string]*Contributor)
	order := []string{}

	for _, parentHash := range parentHashes {
		parent, err := m.repo.Get(parentHash)
		if err != nil {
			return nil, fmt.Errorf("loading parent attribution: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAttribution, parentHash)
		}
		total := parent.TotalShare()
		if total <= 0 {
			continue
		}
		for _, c := range parent.Contributors {
			scaled := parentWeight * (c.CreditShare / total)
			if entry, ok := inherited[c.Identity]; ok {
				entry.CreditShare += scaled
				continue
			}
			inherited[c.Identity] = &Contributor{
				Identity:         c.Identity,
				Role:             RoleContributor,
				CreditShare:      scaled,
				ContributionType: "inherited",
			}
			order = append(order, c.Identity)
		}
	}

	now := m.timeNow().UTC()
	contributors := make([]Contributor, 0, len(order)+1)
	for _, identity := range order {
		entry := *inherited[identity]
		entry.AddedAt = now
		contributors = append(contributors, entry)
	}
	// Stable, deterministic ordering: descending share, ties by identity.
	sort.SliceStable(contributors, func(i, j int) bool {
		if contributors[i].CreditShare != contributors[j].CreditShare {
			return contributors[i].CreditShare > contributors[j].CreditShare
		}
		return contributors[i].Identity < contributors[j].Identity
	})

	if deriver != "" && m.policy.DeriverShare > 0 {
		contributors = append(contributors, Contributor{
			Identity:         deriver,
			Role:             RoleAuthor,
			CreditShare:      m.policy.DeriverShare,
			ContributionType: "derivation",
			AddedAt:          now,
		})
	}

	if err := validateShares(childHash, contributors); err != nil {
		return nil, err
	}

	a := &Attribution{
		ObjectHash:   childHash,
		ObjectType:   childType,
		Contributors: contributors,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.Put(a); err != nil {
		return nil, fmt.Errorf("inheriting attribution: %w", err)
	}

	m.logger.Debug("attribution inherited",
		"child", childHash, "parents", len(parentHashes), "deriver", deriver)
	result := *a
	return &result, nil
}
