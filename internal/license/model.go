// Package license manages license assignment for content-addressed objects
// and computes composite licenses across derivation chains using a static
// compatibility matrix.
package license

import (
	"errors"
	"fmt"
	"time"
)

// Family groups licenses by their obligation model. Families are ranked by
// restrictiveness; the most restrictive compatible license wins when a
// composite is computed.
type Family int

// License families, least to most restrictive.
const (
	FamilyPublicDomain Family = iota
	FamilyPermissive
	FamilyWeakCopyleft
	FamilyStrongCopyleft
	FamilyNetworkCopyleft
	FamilyNonCommercial
	FamilyProprietary
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyPublicDomain:
		return "public-domain"
	case FamilyPermissive:
		return "permissive"
	case FamilyWeakCopyleft:
		return "weak-copyleft"
	case FamilyStrongCopyleft:
		return "strong-copyleft"
	case FamilyNetworkCopyleft:
		return "network-copyleft"
	case FamilyNonCommercial:
		return "noncommercial"
	case FamilyProprietary:
		return "proprietary"
	default:
		return "unknown"
	}
}

// License describes one entry in the license registry.
type License struct {
	ID                  string `json:"id"`   // SPDX-style identifier
	Name                string `json:"name"` // Human-readable name
	Family              Family `json:"family"`
	Rank                int    `json:"rank"` // Restrictiveness order within the registry
	CommercialUse       bool   `json:"commercial_use"`
	AttributionRequired bool   `json:"attribution_required"`
}

// Assignment records a license applied to an object. Re-licensing appends;
// the newest assignment is authoritative and history is retained.
type Assignment struct {
	ObjectHash string    `json:"object_hash"`
	LicenseID  string    `json:"license_id"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// License errors.
var (
	ErrUnknownLicense = errors.New("unknown license identifier")
	ErrNoLicense      = errors.New("object has no license assigned")
	ErrEmptyInput     = errors.New("at least one license is required")
)

// ConflictError reports an incompatible license combination. It carries the
// offending pair so callers can surface an actionable message.
type ConflictError struct {
	LicenseA string
	LicenseB string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("license conflict: %s is incompatible with %s", e.LicenseA, e.LicenseB)
}

// registry holds the ~20 standard licenses known to the system. Ranks are
// unique and ordered so composite computation can pick a deterministic
// most-restrictive winner.
var registry = map[string]License{
	"CC0-1.0":             {ID: "CC0-1.0", Name: "Creative Commons Zero v1.0", Family: FamilyPublicDomain, Rank: 0, CommercialUse: true},
	"Unlicense":           {ID: "Unlicense", Name: "The Unlicense", Family: FamilyPublicDomain, Rank: 1, CommercialUse: true},
	"MIT":                 {ID: "MIT", Name: "MIT License", Family: FamilyPermissive, Rank: 10, CommercialUse: true, AttributionRequired: true},
	"ISC":                 {ID: "ISC", Name: "ISC License", Family: FamilyPermissive, Rank: 11, CommercialUse: true, AttributionRequired: true},
	"Zlib":                {ID: "Zlib", Name: "zlib License", Family: FamilyPermissive, Rank: 12, CommercialUse: true, AttributionRequired: true},
	"BSD-2-Clause":        {ID: "BSD-2-Clause", Name: "BSD 2-Clause License", Family: FamilyPermissive, Rank: 13, CommercialUse: true, AttributionRequired: true},
	"BSD-3-Clause":        {ID: "BSD-3-Clause", Name: "BSD 3-Clause License", Family: FamilyPermissive, Rank: 14, CommercialUse: true, AttributionRequired: true},
	"CC-BY-4.0":           {ID: "CC-BY-4.0", Name: "Creative Commons Attribution 4.0", Family: FamilyPermissive, Rank: 15, CommercialUse: true, AttributionRequired: true},
	"Apache-2.0":          {ID: "Apache-2.0", Name: "Apache License 2.0", Family: FamilyPermissive, Rank: 16, CommercialUse: true, AttributionRequired: true},
	"MPL-2.0":             {ID: "MPL-2.0", Name: "Mozilla Public License 2.0", Family: FamilyWeakCopyleft, Rank: 20, CommercialUse: true, AttributionRequired: true},
	"LGPL-2.1-only":       {ID: "LGPL-2.1-only", Name: "GNU LGPL v2.1 only", Family: FamilyWeakCopyleft, Rank: 21, CommercialUse: true, AttributionRequired: true},
	"LGPL-3.0-only":       {ID: "LGPL-3.0-only", Name: "GNU LGPL v3.0 only", Family: FamilyWeakCopyleft, Rank: 22, CommercialUse: true, AttributionRequired: true},
	"EPL-2.0":             {ID: "EPL-2.0", Name: "Eclipse Public License 2.0", Family: FamilyWeakCopyleft, Rank: 23, CommercialUse: true, AttributionRequired: true},
	"GPL-2.0-only":        {ID: "GPL-2.0-only", Name: "GNU GPL v2.0 only", Family: FamilyStrongCopyleft, Rank: 30, CommercialUse: true, AttributionRequired: true},
	"GPL-3.0-only":        {ID: "GPL-3.0-only", Name: "GNU GPL v3.0 only", Family: FamilyStrongCopyleft, Rank: 31, CommercialUse: true, AttributionRequired: true},
	"CC-BY-SA-4.0":        {ID: "CC-BY-SA-4.0", Name: "Creative Commons Attribution-ShareAlike 4.0", Family: FamilyStrongCopyleft, Rank: 32, CommercialUse: true, AttributionRequired: true},
	"AGPL-3.0-only":       {ID: "AGPL-3.0-only", Name: "GNU AGPL v3.0 only", Family: FamilyNetworkCopyleft, Rank: 40, CommercialUse: true, AttributionRequired: true},
	"CC-BY-NC-4.0":        {ID: "CC-BY-NC-4.0", Name: "Creative Commons Attribution-NonCommercial 4.0", Family: FamilyNonCommercial, Rank: 50, AttributionRequired: true},
	"Proprietary":         {ID: "Proprietary", Name: "Proprietary License", Family: FamilyProprietary, Rank: 60},
	"All-Rights-Reserved": {ID: "All-Rights-Reserved", Name: "All Rights Reserved", Family: FamilyProprietary, Rank: 61},
}

// Lookup returns the registry entry for a license ID.
func Lookup(id string) (License, error) {
	lic, ok := registry[id]
	if !ok {
		return License{}, fmt.Errorf("%w: %q", ErrUnknownLicense, id)
	}
	return lic, nil
}

// Known reports whether a license ID is in the registry.
func Known(id string) bool {
	_, ok := registry[id]
	return ok
}

// RegistrySize returns the number of known licenses.
func RegistrySize() int {
	return len(registry)
}
