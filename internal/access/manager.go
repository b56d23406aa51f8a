package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panini-fs/ipcore/internal/audit"
	"github.com/panini-fs/ipcore/internal/identity"
)

// Recorder is the slice of the audit manager this package needs. Denials
// and write-type checks are recorded fail-closed: if the audit append
// fails, the access operation fails.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (*audit.Event, error)
}

// Manager evaluates and mutates access policies.
type Manager struct {
	repo     Repository
	resolver identity.Resolver
	recorder Recorder
	logger   *slog.Logger
	timeNow  func() time.Time
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

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.timeNow = now
		}
	}
}

// NewManager creates an access manager. The resolver answers group and role
// membership; the recorder anchors denials and write-type checks in the
// audit log.
func NewManager(repo Repository, resolver identity.Resolver, recorder Recorder, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		resolver: resolver,
		recorder: recorder,
		logger:   slog.Default(),
		timeNow:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreatePolicy registers the initial policy for an object. Embargoed
// visibility requires a lift date in liftAt; other levels ignore it.
func (m *Manager) CreatePolicy(ctx context.Context, objectHash, owner string, visibility Visibility, liftAt time.Time) (*Policy, error) {
	if !validVisibility(visibility) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidVisibility, visibility)
	}
	if visibility == VisibilityEmbargoed && liftAt.IsZero() {
		return nil, ErrMissingLiftDate
	}
	if _, err := m.repo.Get(objectHash); err == nil {
		return nil, ErrPolicyExists
	} else if err != ErrPolicyNotFound {
		return nil, err
	}

	policy := &Policy{
		ObjectHash: objectHash,
		Owner:      owner,
		Visibility: visibility,
		LiftAt:     liftAt,
		UpdatedAt:  m.timeNow().UTC(),
	}
	if err := m.repo.Put(policy); err != nil {
		return nil, fmt.Errorf("storing policy: %w", err)
	}
	return copyPolicy(policy), nil
}

// SetVisibility changes an object's visibility level.
func (m *Manager) SetVisibility(ctx context.Context, objectHash, actor string, visibility Visibility, liftAt time.Time) error {
	if !validVisibility(visibility) {
		return fmt.Errorf("%w: %s", ErrInvalidVisibility, visibility)
	}
	if visibility == VisibilityEmbargoed && liftAt.IsZero() {
		return ErrMissingLiftDate
	}

	policy, err := m.repo.Get(objectHash)
	if err != nil {
		return err
	}
	previous := policy.Visibility
	policy.Visibility = visibility
	policy.LiftAt = liftAt
	policy.UpdatedAt = m.timeNow().UTC()
	if err := m.repo.Put(policy); err != nil {
		return fmt.Errorf("storing policy: %w", err)
	}

	_, err = m.recorder.Record(ctx, audit.Entry{
		Type:       audit.EventVisibilityChanged,
		Actor:      actor,
		Action:     "set_visibility",
		ObjectHash: objectHash,
		Outcome:    audit.OutcomeSuccess,
		Details: map[string]string{
			"from": string(previous),
			"to":   string(visibility),
		},
	})
	return err
}

// Grant allows a subject a permission on an object. Overbroad grants, where
// the permission is admin or grant, are recorded at warning severity.
func (m *Manager) Grant(ctx context.Context, objectHash, grantedBy string, kind identity.SubjectKind, subject string, permission Permission, expiry *time.Time) error {
	if !validPermissions[permission] {
		return fmt.Errorf("%w: %s", ErrInvalidPermission, permission)
	}

	policy, err := m.repo.Get(objectHash)
	if err != nil {
		return err
	}

	now := m.timeNow().UTC()
	grant := Grant{
		SubjectKind: kind,
		Subject:     subject,
		Permission:  permission,
		GrantedBy:   grantedBy,
		GrantedAt:   now,
	}
	if expiry != nil {
		e := expiry.UTC()
		grant.Expiry = &e
	}
	policy.Grants = append(policy.Grants, grant)
	policy.UpdatedAt = now
	if err := m.repo.Put(policy); err != nil {
		return fmt.Errorf("storing policy: %w", err)
	}

	severity := audit.SeverityInfo
	if permission == PermissionAdmin || permission == PermissionGrant {
		severity = audit.SeverityWarning
	}
	_, err = m.recorder.Record(ctx, audit.Entry{
		Type:       audit.EventAccessGranted,
		Actor:      grantedBy,
		Action:     "grant",
		ObjectHash: objectHash,
		Outcome:    audit.OutcomeSuccess,
		Severity:   severity,
		Details: map[string]string{
			"subject_kind": string(kind),
			"subject":      subject,
			"permission":   string(permission),
		},
	})
	return err
}

// Revoke removes every grant matching the subject and permission.
func (m *Manager) Revoke(ctx context.Context, objectHash, revokedBy string, kind identity.SubjectKind, subject string, permission Permission) error {
	policy, err := m.repo.Get(objectHash)
	if err != nil {
		return err
	}

	kept := policy.Grants[:0]
	removed := 0
	for _, grant := range policy.Grants {
		if grant.SubjectKind == kind && grant.Subject == subject && grant.Permission == permission {
			removed++
			continue
		}
		kept = append(kept, grant)
	}
	if removed == 0 {
		return ErrGrantNotFound
	}
	policy.Grants = kept
	policy.UpdatedAt = m.timeNow().UTC()
	if err := m.repo.Put(policy); err != nil {
		return fmt.Errorf("storing policy: %w", err)
	}

	_, err = m.recorder.Record(ctx, audit.Entry{
		Type:       audit.EventAccessRevoked,
		Actor:      revokedBy,
		Action:     "revoke",
		ObjectHash: objectHash,
		Outcome:    audit.OutcomeSuccess,
		Details: map[string]string{
			"subject_kind": string(kind),
			"subject":      subject,
			"permission":   string(permission),
		},
	})
	return err
}

// GetPolicy returns an object's policy.
func (m *Manager) GetPolicy(ctx context.Context, objectHash string) (*Policy, error) {
	return m.repo.Get(objectHash)
}

// CheckAccess evaluates whether actor holds permission on the object.
// Visibility is evaluated first: public objects allow read-type permissions
// for everyone, embargoed objects do so once the embargo lifts, and internal
// objects do so for members of the internal group. Explicit grants are
// walked next, with group and role membership resolved through the identity
// resolver and expired grants skipped. An admin grant implies every
// permission.
//
// Every denial, and every check of a write-type permission, is recorded in
// the audit log before returning.
func (m *Manager) CheckAccess(ctx context.Context, objectHash, actor string, permission Permission) (bool, error) {
	if !validPermissions[permission] {
		return false, fmt.Errorf("%w: %s", ErrInvalidPermission, permission)
	}

	policy, err := m.repo.Get(objectHash)
	if err != nil {
		return false, err
	}

	allowed, err := m.evaluate(policy, actor, permission)
	if err != nil {
		return false, err
	}

	if err := m.recordCheck(ctx, objectHash, actor, permission, allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

// Require is CheckAccess with a denial error instead of a boolean, for
// callers that treat denial as failure.
func (m *Manager) Require(ctx context.Context, objectHash, actor string, permission Permission) error {
	allowed, err := m.CheckAccess(ctx, objectHash, actor, permission)
	if err != nil {
		return err
	}
	if !allowed {
		return &DeniedError{ObjectHash: objectHash, Actor: actor, Permission: permission}
	}
	return nil
}

func (m *Manager) evaluate(policy *Policy, actor string, permission Permission) (bool, error) {
	if actor == policy.Owner {
		return true, nil
	}

	now := m.timeNow().UTC()
	if permission.IsReadType() {
		switch policy.Visibility {
		case VisibilityPublic:
			return true, nil
		case VisibilityEmbargoed:
			if !now.Before(policy.LiftAt) {
				return true, nil
			}
		case VisibilityInternal:
			member, err := m.resolver.ResolveMembership(actor, identity.KindGroup, InternalGroup)
			if err != nil {
				return false, fmt.Errorf("resolving internal membership: %w", err)
			}
			if member {
				return true, nil
			}
		}
	}

	for i := range policy.Grants {
		grant := &policy.Grants[i]
		if grant.Permission != permission && grant.Permission != PermissionAdmin {
			continue
		}
		if grant.Expired(now) {
			continue
		}

		switch grant.SubjectKind {
		case identity.KindUser:
			if grant.Subject == actor {
				return true, nil
			}
		case identity.KindGroup, identity.KindRole:
			member, err := m.resolver.ResolveMembership(actor, grant.SubjectKind, grant.Subject)
			if err != nil {
				return false, fmt.Errorf("resolving membership: %w", err)
			}
			if member {
				return true, nil
			}
		}
	}
	return false, nil
}

// recordCheck anchors the outcome in the audit log. Allowed read-type
// checks are not recorded; everything else is.
func (m *Manager) recordCheck(ctx context.Context, objectHash, actor string, permission Permission, allowed bool) error {
	if allowed && permission.IsReadType() {
		return nil
	}

	entry := audit.Entry{
		Type:       audit.EventAccessChecked,
		Actor:      actor,
		Action:     "check_access",
		ObjectHash: objectHash,
		Outcome:    audit.OutcomeSuccess,
		Details:    map[string]string{"permission": string(permission)},
	}
	if !allowed {
		entry.Type = audit.EventAccessDenied
		entry.Outcome = audit.OutcomeDenied
	}

	if _, err := m.recorder.Record(ctx, entry); err != nil {
		return fmt.Errorf("recording access check: %w", err)
	}
	if !allowed {
		m.logger.Warn("access denied",
			slog.String("object_hash", objectHash),
			slog.String("actor", actor),
			slog.String("permission", string(permission)))
	}
	return nil
}
