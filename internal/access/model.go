// Package access evaluates per-object access policies. A policy pairs a
// visibility level with explicit grants; evaluation checks visibility first,
// then walks grants, resolving group and role membership through an injected
// identity resolver. Denials and write-type checks are anchored in the audit
// log.
package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/panini-fs/ipcore/internal/identity"
)

// Visibility is an object's baseline exposure level.
type Visibility string

// Visibility levels.
const (
	VisibilityPrivate    Visibility = "private"
	VisibilityRestricted Visibility = "restricted"
	VisibilityInternal   Visibility = "internal"
	VisibilityPublic     Visibility = "public"
	VisibilityEmbargoed  Visibility = "embargoed"
)

// InternalGroup is the identity group whose members can read objects with
// internal visibility.
const InternalGroup = "internal"

// Permission names an operation an actor may be granted on an object.
type Permission string

// Permissions. Read and download are read-type; the rest are write-type.
const (
	PermissionRead      Permission = "read"
	PermissionDownload  Permission = "download"
	PermissionDerive    Permission = "derive"
	PermissionAnnotate  Permission = "annotate"
	PermissionRelicense Permission = "relicense"
	PermissionGrant     Permission = "grant"
	PermissionSign      Permission = "sign"
	PermissionAdmin     Permission = "admin"
)

var validPermissions = map[Permission]bool{
	PermissionRead:      true,
	PermissionDownload:  true,
	PermissionDerive:    true,
	PermissionAnnotate:  true,
	PermissionRelicense: true,
	PermissionGrant:     true,
	PermissionSign:      true,
	PermissionAdmin:     true,
}

// IsReadType reports whether p only exposes content without changing state.
func (p Permission) IsReadType() bool {
	return p == PermissionRead || p == PermissionDownload
}

// Grant allows a subject one permission on an object, optionally until an
// expiry. A nil Expiry never expires.
type Grant struct {
	SubjectKind identity.SubjectKind `json:"subject_kind"`
	Subject     string               `json:"subject"`
	Permission  Permission           `json:"permission"`
	Expiry      *time.Time           `json:"expiry,omitempty"`
	GrantedBy   string               `json:"granted_by"`
	GrantedAt   time.Time            `json:"granted_at"`
}

// Expired reports whether the grant has lapsed at the given instant.
func (g *Grant) Expired(now time.Time) bool {
	return g.Expiry != nil && !now.Before(*g.Expiry)
}

// Policy is the access policy of one object. The owner always passes every
// check. LiftAt is only meaningful for embargoed visibility.
type Policy struct {
	ObjectHash string     `json:"object_hash"`
	Owner      string     `json:"owner"`
	Visibility Visibility `json:"visibility"`
	LiftAt     time.Time  `json:"lift_at,omitempty"`
	Grants     []Grant    `json:"grants"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Sentinel errors.
var (
	ErrPolicyNotFound    = errors.New("access policy not found")
	ErrPolicyExists      = errors.New("access policy already exists")
	ErrInvalidPermission = errors.New("invalid permission")
	ErrInvalidVisibility = errors.New("invalid visibility level")
	ErrMissingLiftDate   = errors.New("embargoed visibility requires a lift date")
	ErrGrantNotFound     = errors.New("grant not found")
)

// DeniedError reports a failed access check.
type DeniedError struct {
	ObjectHash string
	Actor      string
	Permission Permission
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: actor %s lacks %s on object %s", e.Actor, e.Permission, e.ObjectHash)
}

func validVisibility(v Visibility) bool {
	switch v {
	case VisibilityPrivate, VisibilityRestricted, VisibilityInternal, VisibilityPublic, VisibilityEmbargoed:
		return true
	}
	return false
}
