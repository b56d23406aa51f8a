// Package attribution tracks contributor credit shares for objects and
// propagates credit across derivations. Credit shares for an object always
// sum to at most 1.0.
package attribution

import (
	"errors"
	"fmt"
	"time"
)

// Role describes a contributor's relationship to an object.
type Role string

// Valid contributor roles.
const (
	RoleCreator     Role = "creator"
	RoleAuthor      Role = "author"
	RoleContributor Role = "contributor"
	RoleEditor      Role = "editor"
	RoleReviewer    Role = "reviewer"
)

// ValidRoles is the set of accepted contributor roles.
var ValidRoles = map[Role]bool{
	RoleCreator:     true,
	RoleAuthor:      true,
	RoleContributor: true,
	RoleEditor:      true,
	RoleReviewer:    true,
}

// shareEpsilon absorbs floating-point drift when checking the sum invariant.
const shareEpsilon = 1e-9

// Attribution errors.
var (
	ErrInvalidRole          = errors.New("invalid contributor role")
	ErrNoContributors       = errors.New("attribution requires at least one contributor")
	ErrNoAttribution        = errors.New("object has no attribution")
	ErrDuplicateAttribution = errors.New("attribution already exists for object")
	ErrNoParents            = errors.New("inheritance requires at least one parent")
)

// InvalidCreditShareError reports a credit-share invariant violation.
type InvalidCreditShareError struct {
	ObjectHash string
	Sum        float64
}

func (e *InvalidCreditShareError) Error() string {
	return fmt.Sprintf("invalid credit shares for object %s: sum %.6f exceeds 1.0", e.ObjectHash, e.Sum)
}

// Contributor is one credited party on an object.
type Contributor struct {
	Identity         string    `json:"identity"`
	Role             Role      `json:"role"`
	CreditShare      float64   `json:"credit_share"` // In [0, 1]
	ContributionType string    `json:"contribution_type,omitempty"`
	AddedAt          time.Time `json:"added_at"`
}

// Attribution is the ordered contributor list for one object.
type Attribution struct {
	ObjectHash   string        `json:"object_hash"`
	ObjectType   string        `json:"object_type"`
	Contributors []Contributor `json:"contributors"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TotalShare returns the sum of all contributor credit shares.
func (a *Attribution) TotalShare() float64 {
	var sum float64
	for _, c := range a.Contributors {
		sum += c.CreditShare
	}
	return sum
}

// validateShares checks each share is in [0,1] and the sum is ≤ 1.0 within
// epsilon.
func validateShares(objectHash string, contributors []Contributor) error {
	var sum float64
	for _, c := range contributors {
		if c.CreditShare < 0 || c.CreditShare > 1 {
			return &InvalidCreditShareError{ObjectHash: objectHash, Sum: c.CreditShare}
		}
		sum += c.CreditShare
	}
	if sum > 1.0+shareEpsilon {
		return &InvalidCreditShareError{ObjectHash: objectHash, Sum: sum}
	}
	return nil
}

// Policy holds the configurable credit-redistribution rules for derivation.
type Policy struct {
	// DeriverShare is the credit fraction reserved for the deriving actor;
	// the remainder is split equally across parents, then scaled by each
	// parent's internal shares.
	DeriverShare float64
}

// DefaultPolicy reserves 10% of a derived object's credit for the deriver.
var DefaultPolicy = Policy{DeriverShare: 0.10}
