package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// clearEnv unsets all IPCORE_ variables used by Load for test isolation.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"IPCORE_ENV", "IPCORE_STORE_ROOT", "IPCORE_DERIVER_SHARE",
		"IPCORE_STORAGE_RETRIES", "IPCORE_JWT_SECRET", "IPCORE_JWT_PREVIOUS_SECRET",
		"IPCORE_S3_BUCKET_NAME", "IPCORE_S3_ACCESS_KEY_ID",
		"IPCORE_S3_SECRET_ACCESS_KEY", "IPCORE_S3_ENDPOINT",
		"IPCORE_AUDIT_DATABASE_URL", "IPCORE_REDIS_ADDR",
		"IPCORE_CACHE_TTL_SECONDS", "IPCORE_TRACING_ENABLED",
		"IPCORE_TRACING_EXPORTER", "IPCORE_OTLP_ENDPOINT", "IPCORE_SAMPLING_RATE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("IPCORE_STORE_ROOT", "/tmp/ipcore-store")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}

	if cfg.Env != DefaultEnv {
		t.Errorf("Env = %q, want %q", cfg.Env, DefaultEnv)
	}
	if cfg.DeriverShare != DefaultDeriverShare {
		t.Errorf("DeriverShare = %v, want %v", cfg.DeriverShare, DefaultDeriverShare)
	}
	if cfg.StorageRetries != DefaultStorageRetries {
		t.Errorf("StorageRetries = %d, want %d", cfg.StorageRetries, DefaultStorageRetries)
	}
	if cfg.TracingExporter != DefaultTracingExporter {
		t.Errorf("TracingExporter = %q, want %q", cfg.TracingExporter, DefaultTracingExporter)
	}
	if cfg.S3Enabled() {
		t.Error("S3Enabled() = true with no S3 config")
	}
}

func TestLoad_MissingStoreRoot(t *testing.T) {
	clearEnv(t)

	_, errs := Load("")
	found := false
	for _, err := range errs {
		if errors.Is(err, ErrMissingStoreRoot) {
			found = true
		}
	}
	if !found {
		t.Errorf("Load() errors = %v, want ErrMissingStoreRoot", errs)
	}
}

func TestLoad_EnvPrecedenceOverFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "store_root: /from/file\nderiver_share: 0.25\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("IPCORE_STORE_ROOT", "/from/env")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}
	if cfg.StoreRoot != "/from/env" {
		t.Errorf("StoreRoot = %q, want env value to win", cfg.StoreRoot)
	}
	if cfg.DeriverShare != 0.25 {
		t.Errorf("DeriverShare = %v, want file value 0.25", cfg.DeriverShare)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)

	_, errs := Load("/nonexistent/config.yaml")
	if len(errs) == 0 {
		t.Fatal("Load() with missing file should return an error")
	}
}

func TestValidate_DeriverShareBounds(t *testing.T) {
	tests := []struct {
		share   float64
		wantErr bool
	}{
		{0.0, false},
		{0.10, false},
		{0.5, false},
		{-0.1, true},
		{0.6, true},
	}

	for _, tt := range tests {
		cfg := &Config{StoreRoot: "/tmp/s", DeriverShare: tt.share}
		errs := cfg.Validate()
		got := false
		for _, err := range errs {
			if errors.Is(err, ErrInvalidDeriverShare) {
				got = true
			}
		}
		if got != tt.wantErr {
			t.Errorf("Validate() share=%v: invalid-share error = %v, want %v", tt.share, got, tt.wantErr)
		}
	}
}

func TestValidate_PartialS3Config(t *testing.T) {
	cfg := &Config{
		StoreRoot:    "/tmp/s",
		S3BucketName: "bucket",
		// access key, secret, endpoint missing
	}
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if errors.Is(err, ErrIncompleteS3Config) {
			found = true
		}
	}
	if !found {
		t.Errorf("Validate() errors = %v, want ErrIncompleteS3Config", errs)
	}
}

func TestLoad_InvalidNumericEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("IPCORE_STORE_ROOT", "/tmp/s")
	t.Setenv("IPCORE_STORAGE_RETRIES", "not-a-number")

	_, errs := Load("")
	found := false
	for _, err := range errs {
		if errors.Is(err, ErrInvalidNumericEnvVar) {
			found = true
		}
	}
	if !found {
		t.Errorf("Load() errors = %v, want ErrInvalidNumericEnvVar", errs)
	}
}
