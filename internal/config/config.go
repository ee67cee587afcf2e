package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/confidant/internal/secrets"
)

const (
	defaultRateLimitRPS        = 25.0
	defaultRateLimitBurst      = 50
	defaultShutdownGracePeriod = 10 * time.Second

	envPrefix = "CONFIDANT_"
)

var (
	// ErrPlaceholderSecret is returned when a production-like record still
	// carries PlaceholderSecretKey after every layer has been applied.
	ErrPlaceholderSecret = errors.New("secret key is still the committed placeholder; supply CONFIDANT_SECRET_KEY or a vault reference")

	// ErrNoSecretResolver is returned when the secret key is a vault
	// reference but Load was given no resolver.
	ErrNoSecretResolver = errors.New("secret key references a secret store but no resolver is configured")
)

// Config aggregates the resolved record with the host process tunables.
// Precedence: CLI flags > Environment variables > YAML config > Profile > Base defaults
type Config struct {
	// Environment is the requested name, before fallback.
	Environment string
	// Profile is the profile Environment selected.
	Profile Profile
	// Known is false when Environment fell back to DefaultKey.
	Known    bool
	Settings Record

	RateLimitRPS        float64
	RateLimitBurst      int
	ShutdownGracePeriod time.Duration
}

// fileConfig represents the YAML configuration file structure.
type fileConfig struct {
	Environment         string        `yaml:"environment"`
	Overrides           Overrides     `yaml:",inline"`
	ShutdownGracePeriod string        `yaml:"shutdown_grace_period"`
	RateLimit           yamlRateLimit `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides. Non-nil values are
// applied as given and validated with the rest of the configuration.
type CLIOverrides struct {
	ConfigFile     string
	EnvFiles       []string
	Environment    *string
	Host           *string
	Port           *int
	LogFile        *string
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int

	// AllowPlaceholderSecret skips the placeholder-secret check, for
	// callers that never use the secret.
	AllowPlaceholderSecret bool
}

// Load builds the runtime configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Profile > Base defaults
//
// resolver may be nil when the secret key is never a store reference.
func Load(ctx context.Context, overrides *CLIOverrides, resolver secrets.Resolver) (Config, error) {
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	if err := loadEnvFiles(overrides.EnvFiles); err != nil {
		return Config{}, err
	}

	var file *fileConfig
	if overrides.ConfigFile != "" {
		f, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		file = f
	}

	cfg := Config{
		Environment:         selectEnvironment(overrides, file),
		RateLimitRPS:        defaultRateLimitRPS,
		RateLimitBurst:      defaultRateLimitBurst,
		ShutdownGracePeriod: defaultShutdownGracePeriod,
	}
	cfg.Profile, cfg.Known = Lookup(cfg.Environment)
	cfg.Settings = Resolve(cfg.Environment)

	if file != nil {
		if err := applyFileConfig(&cfg, file); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if err := applyCLIOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}

	if secrets.IsReference(cfg.Settings.SecretKey) {
		if resolver == nil {
			return Config{}, ErrNoSecretResolver
		}
		secret, err := resolver.Resolve(ctx, cfg.Settings.SecretKey)
		if err != nil {
			return Config{}, fmt.Errorf("resolve secret key: %w", err)
		}
		cfg.Settings.SecretKey = secret
	}

	if err := validateConfig(cfg, overrides.AllowPlaceholderSecret); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadEnvFiles loads dotenv files in order. Missing files are skipped and
// variables already present in the process environment are kept.
func loadEnvFiles(paths []string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// selectEnvironment picks the profile name: CLI, then CONFIDANT_ENV, then
// the YAML file, then DefaultKey.
func selectEnvironment(overrides *CLIOverrides, file *fileConfig) string {
	if overrides.Environment != nil {
		if name := strings.TrimSpace(*overrides.Environment); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(os.Getenv(envPrefix + "ENV")); name != "" {
		return name
	}
	if file != nil {
		if name := strings.TrimSpace(file.Environment); name != "" {
			return name
		}
	}
	return DefaultKey
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &f, nil
}

// applyFileConfig applies YAML configuration over the resolved profile.
func applyFileConfig(cfg *Config, f *fileConfig) error {
	cfg.Settings = cfg.Settings.Apply(f.Overrides)

	if f.ShutdownGracePeriod != "" {
		d, err := time.ParseDuration(f.ShutdownGracePeriod)
		if err != nil {
			return fmt.Errorf("parse shutdown_grace_period: %w", err)
		}
		cfg.ShutdownGracePeriod = d
	}

	if f.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *f.RateLimit.RPS
	}
	if f.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *f.RateLimit.Burst
	}
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	var o Overrides

	if raw, ok := lookupEnv(envPrefix + "DEBUG"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", envPrefix, err)
		}
		o.Debug = &v
	}
	if raw, ok := lookupEnv(envPrefix + "TESTING"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%sTESTING: %w", envPrefix, err)
		}
		o.Testing = &v
	}
	if raw, ok := lookupEnv(envPrefix + "SECRET_KEY"); ok {
		o.SecretKey = &raw
	}
	if raw, ok := lookupEnv(envPrefix + "HOST"); ok {
		o.Host = &raw
	}
	if raw, ok := lookupEnv(envPrefix + "PORT"); ok {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		o.Port = &v
	}
	if raw, ok := lookupEnv(envPrefix + "LOG_FILE"); ok {
		o.LogFile = &raw
	}
	if raw, ok := lookupEnv(envPrefix + "LOG_LEVEL"); ok {
		lvl, err := ParseLogLevel(raw)
		if err != nil {
			return fmt.Errorf("%sLOG_LEVEL: %w", envPrefix, err)
		}
		o.LogLevel = &lvl
	}
	if raw, ok := lookupEnv(envPrefix + "REQUEST_TIMEOUT"); ok {
		v, err := parseSeconds(raw)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", envPrefix, err)
		}
		o.RequestTimeoutSeconds = &v
	}
	if raw, ok := lookupEnv(envPrefix + "CONNECTION_TIMEOUT"); ok {
		v, err := parseSeconds(raw)
		if err != nil {
			return fmt.Errorf("%sCONNECTION_TIMEOUT: %w", envPrefix, err)
		}
		o.ConnectionTimeoutSeconds = &v
	}
	cfg.Settings = cfg.Settings.Apply(o)

	if rps, ok := lookupEnv("RATE_LIMIT_RPS"); ok {
		value, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = value
	}

	if burst, ok := lookupEnv("RATE_LIMIT_BURST"); ok {
		value, err := strconv.Atoi(burst)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = value
	}
	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	var o Overrides

	if overrides.Host != nil && *overrides.Host != "" {
		o.Host = overrides.Host
	}
	if overrides.Port != nil {
		o.Port = overrides.Port
	}
	if overrides.LogFile != nil && *overrides.LogFile != "" {
		o.LogFile = overrides.LogFile
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		lvl, err := ParseLogLevel(*overrides.LogLevel)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		o.LogLevel = &lvl
	}
	cfg.Settings = cfg.Settings.Apply(o)

	if overrides.RateLimitRPS != nil {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config, allowPlaceholder bool) error {
	if err := validateRecord(cfg.Settings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if !allowPlaceholder && cfg.Settings.ProductionLike() && cfg.Settings.SecretKey == PlaceholderSecretKey {
		return ErrPlaceholderSecret
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.ShutdownGracePeriod < 0 {
		return fmt.Errorf("shutdown grace period must be >= 0")
	}
	return nil
}

// lookupEnv returns the trimmed value of key when it is set and non-blank.
func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// parseSeconds accepts either a bare integer or a Go duration such as "45s".
// Durations must be whole seconds; "500ms" would otherwise truncate to the
// zero that disables a timeout.
func parseSeconds(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", raw)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("timeout %q is not a whole number of seconds", raw)
	}
	return int(d / time.Second), nil
}
