package license

import (
	"errors"
	"testing"
)

func TestRegistrySize(t *testing.T) {
	if got := RegistrySize(); got != 20 {
		t.Errorf("RegistrySize() = %d, want 20", got)
	}
}

func TestPairwise(t *testing.T) {
	tests := []struct {
		a, b string
		want Level
	}{
		{"MIT", "MIT", Compatible},
		{"MIT", "Apache-2.0", Compatible},
		{"MIT", "GPL-3.0-only", Compatible},
		{"GPL-3.0-only", "Proprietary", Incompatible},
		{"MIT", "Proprietary", Incompatible},
		{"Apache-2.0", "GPL-2.0-only", Incompatible},
		{"GPL-2.0-only", "GPL-3.0-only", Incompatible},
		{"MPL-2.0", "GPL-3.0-only", Conditional},
		{"CC-BY-SA-4.0", "GPL-3.0-only", Conditional},
		{"CC-BY-SA-4.0", "GPL-2.0-only", Incompatible},
		{"EPL-2.0", "GPL-3.0-only", Incompatible},
		{"CC0-1.0", "AGPL-3.0-only", Compatible},
		{"CC-BY-NC-4.0", "MIT", Conditional},
		{"CC-BY-NC-4.0", "GPL-3.0-only", Incompatible},
		{"CC-BY-NC-4.0", "CC-BY-NC-4.0", Compatible},
		{"MIT", "NotALicense", Unknown},
	}

	for _, tt := range tests {
		if got := Pairwise(tt.a, tt.b); got != tt.want {
			t.Errorf("Pairwise(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		// The matrix is symmetric.
		if got := Pairwise(tt.b, tt.a); got != tt.want {
			t.Errorf("Pairwise(%s, %s) = %v, want %v (symmetry)", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestCheckCompatibility(t *testing.T) {
	t.Run("incompatible pair", func(t *testing.T) {
		ok, composite, err := CheckCompatibility([]string{"GPL-3.0-only", "Proprietary"})
		if err != nil {
			t.Fatalf("CheckCompatibility() error = %v", err)
		}
		if ok || composite != "" {
			t.Errorf("CheckCompatibility() = (%v, %q), want (false, \"\")", ok, composite)
		}
	})

	t.Run("compatible pair yields composite", func(t *testing.T) {
		ok, composite, err := CheckCompatibility([]string{"MIT", "Apache-2.0"})
		if err != nil {
			t.Fatalf("CheckCompatibility() error = %v", err)
		}
		if !ok {
			t.Fatal("CheckCompatibility() = false, want true")
		}
		if composite != "Apache-2.0" {
			t.Errorf("composite = %q, want Apache-2.0 (most restrictive wins)", composite)
		}
	})

	t.Run("copyleft dominates permissive", func(t *testing.T) {
		ok, composite, err := CheckCompatibility([]string{"MIT", "BSD-3-Clause", "GPL-3.0-only"})
		if err != nil {
			t.Fatalf("CheckCompatibility() error = %v", err)
		}
		if !ok || composite != "GPL-3.0-only" {
			t.Errorf("CheckCompatibility() = (%v, %q), want (true, GPL-3.0-only)", ok, composite)
		}
	})

	t.Run("triple with one bad pair fails", func(t *testing.T) {
		// MIT+GPL-2.0 ok, MIT+Apache ok, but Apache+GPL-2.0 is not.
		ok, _, err := CheckCompatibility([]string{"MIT", "Apache-2.0", "GPL-2.0-only"})
		if err != nil {
			t.Fatalf("CheckCompatibility() error = %v", err)
		}
		if ok {
			t.Error("CheckCompatibility() = true, want false (pairwise must hold for all pairs)")
		}
	})

	t.Run("unknown license", func(t *testing.T) {
		_, _, err := CheckCompatibility([]string{"MIT", "NotALicense"})
		if !errors.Is(err, ErrUnknownLicense) {
			t.Errorf("CheckCompatibility() error = %v, want ErrUnknownLicense", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		_, _, err := CheckCompatibility(nil)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("CheckCompatibility() error = %v, want ErrEmptyInput", err)
		}
	})
}

func TestComputeComposite(t *testing.T) {
	t.Run("single license is its own composite", func(t *testing.T) {
		composite, err := ComputeComposite([]string{"MIT"})
		if err != nil {
			t.Fatalf("ComputeComposite() error = %v", err)
		}
		if composite != "MIT" {
			t.Errorf("composite = %q, want MIT", composite)
		}
	})

	t.Run("conflict returns typed error", func(t *testing.T) {
		_, err := ComputeComposite([]string{"GPL-3.0-only", "Proprietary"})
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("ComputeComposite() error = %v, want ConflictError", err)
		}
		if conflict.LicenseA != "GPL-3.0-only" || conflict.LicenseB != "Proprietary" {
			t.Errorf("conflict pair = (%s, %s), want (GPL-3.0-only, Proprietary)", conflict.LicenseA, conflict.LicenseB)
		}
	})

	t.Run("noncommercial dominates permissive", func(t *testing.T) {
		composite, err := ComputeComposite([]string{"CC-BY-4.0", "CC-BY-NC-4.0"})
		if err != nil {
			t.Fatalf("ComputeComposite() error = %v", err)
		}
		if composite != "CC-BY-NC-4.0" {
			t.Errorf("composite = %q, want CC-BY-NC-4.0", composite)
		}
	})
}
