// Package config provides configuration loading and validation for ipcore.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the IP management system.
type Config struct {
	// Environment name (development, staging, production)
	Env string `koanf:"env"`

	// StoreRoot is the root directory for file-backed persistence
	// (objects, provenance, licenses, attributions, access, audit,
	// signatures, reputation subtrees).
	StoreRoot string `koanf:"store_root"`

	// Attribution policy
	DeriverShare float64 `koanf:"deriver_share"` // Credit fraction reserved for a deriving actor (0.0-0.5)

	// Storage retry budget for transient I/O failures
	StorageRetries int `koanf:"storage_retries"`

	// Identity (JWT membership resolution)
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Optional S3/R2 object backend. When BucketName is empty the
	// filesystem backend is used.
	S3BucketName      string `koanf:"s3_bucket_name"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
	S3Endpoint        string `koanf:"s3_endpoint"`

	// Optional Postgres audit backend. When empty the JSONL file
	// backend is used.
	AuditDatabaseURL string `koanf:"audit_database_url"`

	// Optional Redis summary cache. When empty caching is disabled.
	RedisAddr       string `koanf:"redis_addr"`
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds"`

	// Tracing
	TracingEnabled  bool    `koanf:"tracing_enabled"`
	TracingExporter string  `koanf:"tracing_exporter"` // otlp-grpc or otlp-http
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// Configuration validation errors.
var (
	ErrMissingStoreRoot     = errors.New("IPCORE_STORE_ROOT is required")
	ErrInvalidDeriverShare  = errors.New("IPCORE_DERIVER_SHARE must be between 0.0 and 0.5")
	ErrInvalidRetries       = errors.New("IPCORE_STORAGE_RETRIES must be a non-negative integer")
	ErrIncompleteS3Config   = errors.New("S3 backend requires bucket name, access key, secret, and endpoint")
	ErrMissingJWTSecret     = errors.New("IPCORE_JWT_SECRET is required when JWT identity resolution is enabled")
	ErrInvalidSamplingRate  = errors.New("IPCORE_SAMPLING_RATE must be between 0.0 and 1.0")
	ErrInvalidCacheTTL      = errors.New("IPCORE_CACHE_TTL_SECONDS must be a non-negative integer")
	ErrInvalidNumericEnvVar = errors.New("environment variable must be a valid number")
)

// Default values for non-secret configuration.
const (
	DefaultEnv             = "development"
	DefaultDeriverShare    = 0.10
	DefaultStorageRetries  = 3
	DefaultCacheTTLSeconds = 300
	DefaultSamplingRate    = 0.1
	DefaultTracingExporter = "otlp-grpc"
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables (IPCORE_ prefix) take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	deriverShare, shareErr := getEnvFloatOrDefault("IPCORE_DERIVER_SHARE", k.Float64("deriver_share"), DefaultDeriverShare)
	if shareErr != nil {
		loadErrs = append(loadErrs, shareErr)
	}

	retries, retryErr := getEnvIntOrDefault("IPCORE_STORAGE_RETRIES", k.Int("storage_retries"), DefaultStorageRetries)
	if retryErr != nil {
		loadErrs = append(loadErrs, retryErr)
	}

	cacheTTL, ttlErr := getEnvIntOrDefault("IPCORE_CACHE_TTL_SECONDS", k.Int("cache_ttl_seconds"), DefaultCacheTTLSeconds)
	if ttlErr != nil {
		loadErrs = append(loadErrs, ttlErr)
	}

	samplingRate, rateErr := getEnvFloatOrDefault("IPCORE_SAMPLING_RATE", k.Float64("sampling_rate"), DefaultSamplingRate)
	if rateErr != nil {
		loadErrs = append(loadErrs, rateErr)
	}

	tracingEnabled := k.Bool("tracing_enabled")
	if val := os.Getenv("IPCORE_TRACING_ENABLED"); val != "" {
		tracingEnabled = val == "true" || val == "1" || val == "yes" || val == "on"
	}

	cfg := &Config{
		Env:               getEnvOrDefault("IPCORE_ENV", k.String("env"), DefaultEnv),
		StoreRoot:         getEnvOrKoanf("IPCORE_STORE_ROOT", k, "store_root"),
		DeriverShare:      deriverShare,
		StorageRetries:    retries,
		JWTSecret:         getEnvOrKoanf("IPCORE_JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret: getEnvOrKoanf("IPCORE_JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		S3BucketName:      getEnvOrKoanf("IPCORE_S3_BUCKET_NAME", k, "s3_bucket_name"),
		S3AccessKeyID:     getEnvOrKoanf("IPCORE_S3_ACCESS_KEY_ID", k, "s3_access_key_id"),
		S3SecretAccessKey: getEnvOrKoanf("IPCORE_S3_SECRET_ACCESS_KEY", k, "s3_secret_access_key"),
		S3Endpoint:        getEnvOrKoanf("IPCORE_S3_ENDPOINT", k, "s3_endpoint"),
		AuditDatabaseURL:  getEnvOrKoanf("IPCORE_AUDIT_DATABASE_URL", k, "audit_database_url"),
		RedisAddr:         getEnvOrKoanf("IPCORE_REDIS_ADDR", k, "redis_addr"),
		CacheTTLSeconds:   cacheTTL,
		TracingEnabled:    tracingEnabled,
		TracingExporter:   getEnvOrDefault("IPCORE_TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		OTLPEndpoint:      getEnvOrKoanf("IPCORE_OTLP_ENDPOINT", k, "otlp_endpoint"),
		SamplingRate:      samplingRate,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// Validate checks the configuration for missing or inconsistent values.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.StoreRoot == "" {
		errs = append(errs, ErrMissingStoreRoot)
	}
	if c.DeriverShare < 0.0 || c.DeriverShare > 0.5 {
		errs = append(errs, ErrInvalidDeriverShare)
	}
	if c.StorageRetries < 0 {
		errs = append(errs, ErrInvalidRetries)
	}
	if c.CacheTTLSeconds < 0 {
		errs = append(errs, ErrInvalidCacheTTL)
	}
	if c.SamplingRate < 0.0 || c.SamplingRate > 1.0 {
		errs = append(errs, ErrInvalidSamplingRate)
	}

	// S3 backend is all-or-nothing: a partial credential set is a
	// misconfiguration, not a fallback to the filesystem.
	s3Fields := []string{c.S3BucketName, c.S3AccessKeyID, c.S3SecretAccessKey, c.S3Endpoint}
	anySet, allSet := false, true
	for _, f := range s3Fields {
		if f != "" {
			anySet = true
		} else {
			allSet = false
		}
	}
	if anySet && !allSet {
		errs = append(errs, ErrIncompleteS3Config)
	}

	return errs
}

// S3Enabled reports whether the S3 object backend is configured.
func (c *Config) S3Enabled() bool {
	return c.S3BucketName != ""
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidNumericEnvVar)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value, or default. Returns an error if the environment
// variable is set but cannot be parsed.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidNumericEnvVar)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}
