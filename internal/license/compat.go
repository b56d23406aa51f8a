package license

import (
	"fmt"
	"sort"
)

// Level is the compatibility relationship between two licenses.
type Level int

// Compatibility levels.
const (
	Unknown Level = iota
	Incompatible
	Conditional
	Compatible
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case Compatible:
		return "compatible"
	case Conditional:
		return "conditionally-compatible"
	case Incompatible:
		return "incompatible"
	default:
		return "unknown"
	}
}

// pairKey produces an order-independent matrix key.
func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// exceptions lists the pairs whose level differs from the family-rule
// default. Sourced from the commonly published FSF/OSI compatibility
// relationships rather than invented ad hoc.
var exceptions = map[[2]string]Level{
	// Apache-2.0 patent clause is a further restriction under GPLv2.
	pairKey("Apache-2.0", "GPL-2.0-only"): Incompatible,
	// GPL versions without "or later" cannot be combined.
	pairKey("GPL-2.0-only", "GPL-3.0-only"):  Incompatible,
	pairKey("GPL-2.0-only", "AGPL-3.0-only"): Incompatible,
	pairKey("GPL-2.0-only", "LGPL-3.0-only"): Incompatible,
	pairKey("GPL-2.0-only", "CC-BY-SA-4.0"):  Incompatible,
	// EPL's choice-of-law and patent terms conflict with the GPL family.
	pairKey("EPL-2.0", "GPL-2.0-only"):  Incompatible,
	pairKey("EPL-2.0", "GPL-3.0-only"):  Incompatible,
	pairKey("EPL-2.0", "AGPL-3.0-only"): Incompatible,
	pairKey("EPL-2.0", "CC-BY-SA-4.0"):  Incompatible,
	// MPL-2.0's secondary-license mechanism makes GPL combination
	// possible but only under explicit conditions.
	pairKey("MPL-2.0", "GPL-2.0-only"):  Conditional,
	pairKey("MPL-2.0", "GPL-3.0-only"):  Conditional,
	pairKey("MPL-2.0", "AGPL-3.0-only"): Conditional,
	// CC-BY-SA 4.0 is one-way compatible into GPLv3.
	pairKey("CC-BY-SA-4.0", "GPL-3.0-only"):  Conditional,
	pairKey("CC-BY-SA-4.0", "AGPL-3.0-only"): Conditional,
}

// Pairwise returns the compatibility level between two known licenses.
// Unknown IDs yield Unknown.
func Pairwise(a, b string) Level {
	la, errA := Lookup(a)
	lb, errB := Lookup(b)
	if errA != nil || errB != nil {
		return Unknown
	}

	if a == b {
		return Compatible
	}

	if level, ok := exceptions[pairKey(a, b)]; ok {
		return level
	}

	famA, famB := la.Family, lb.Family

	// Proprietary combines with nothing else.
	if famA == FamilyProprietary || famB == FamilyProprietary {
		return Incompatible
	}

	// NonCommercial: copyleft forbids added restrictions; permissive and
	// public-domain content can flow in, but the composite stays NC.
	if famA == FamilyNonCommercial || famB == FamilyNonCommercial {
		other := famA
		if famA == FamilyNonCommercial {
			other = famB
		}
		switch other {
		case FamilyPublicDomain, FamilyPermissive:
			return Conditional
		case FamilyNonCommercial:
			return Compatible
		default:
			return Incompatible
		}
	}

	// Public-domain combines with anything remaining.
	if famA == FamilyPublicDomain || famB == FamilyPublicDomain {
		return Compatible
	}

	// Everything left is permissive or copyleft; they compose with the
	// copyleft obligations dominating.
	return Compatible
}

// CheckCompatibility evaluates a set of licenses. Compatibility must hold
// pairwise for every combination; if it does, the composite license is the
// most restrictive member (highest rank). Returns (false, "") if any pair
// is incompatible or unknown.
func CheckCompatibility(ids []string) (bool, string, error) {
	if len(ids) == 0 {
		return false, "", ErrEmptyInput
	}

	for _, id := range ids {
		if !Known(id) {
			return false, "", fmt.Errorf("%w: %q", ErrUnknownLicense, id)
		}
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			level := Pairwise(ids[i], ids[j])
			if level == Incompatible || level == Unknown {
				return false, "", nil
			}
		}
	}

	composite := mostRestrictive(ids)
	return true, composite, nil
}

// ComputeComposite returns the composite license for a derivation across
// the given parent licenses, or a ConflictError naming the first
// incompatible pair.
func ComputeComposite(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", ErrEmptyInput
	}

	for _, id := range ids {
		if !Known(id) {
			return "", fmt.Errorf("%w: %q", ErrUnknownLicense, id)
		}
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			level := Pairwise(ids[i], ids[j])
			if level == Incompatible || level == Unknown {
				return "", &ConflictError{LicenseA: ids[i], LicenseB: ids[j]}
			}
		}
	}

	return mostRestrictive(ids), nil
}

// mostRestrictive picks the highest-ranked license from a known set.
func mostRestrictive(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return registry[sorted[i]].Rank > registry[sorted[j]].Rank
	})
	return sorted[0]
}
