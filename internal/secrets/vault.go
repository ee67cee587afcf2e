package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// Vault resolves references against a KV v2 secrets engine. It is safe
// for concurrent use.
type Vault struct {
	api *vault.Client
	ttl time.Duration
	now func() time.Time

	cacheMu sync.RWMutex
	cache   map[Reference]cached
}

type cached struct {
	val string
	exp time.Time
}

// VaultOption configures a Vault resolver.
type VaultOption func(*Vault)

// WithCacheTTL caches resolved values for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) VaultOption {
	return func(v *Vault) {
		v.ttl = ttl
	}
}

// NewVault builds a resolver from an explicit client configuration.
// A non-empty token replaces whatever the configuration picked up.
func NewVault(cfg *vault.Config, token string, opts ...VaultOption) (*Vault, error) {
	if cfg == nil {
		cfg = vault.DefaultConfig()
	}
	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if token != "" {
		apiCli.SetToken(token)
	}

	v := &Vault{
		api:   apiCli,
		now:   time.Now,
		cache: make(map[Reference]cached),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// NewVaultFromEnv reads VAULT_ADDR, VAULT_TOKEN, and the other standard
// VAULT_* variables.
func NewVaultFromEnv(opts ...VaultOption) (*Vault, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	return NewVault(cfg, os.Getenv("VAULT_TOKEN"), opts...)
}

// Resolve implements Resolver.
func (v *Vault) Resolve(ctx context.Context, raw string) (string, error) {
	ref, err := ParseReference(raw)
	if err != nil {
		return "", err
	}

	if v.ttl > 0 {
		v.cacheMu.RLock()
		cv, ok := v.cache[ref]
		v.cacheMu.RUnlock()
		if ok && v.now().Before(cv.exp) {
			return cv.val, nil
		}
	}

	sec, err := v.api.KVv2(ref.Mount).Get(ctx, ref.Path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", fmt.Errorf("%w: %s/%s", ErrSecretNotFound, ref.Mount, ref.Path)
		}
		return "", fmt.Errorf("vault get %s/%s: %w", ref.Mount, ref.Path, err)
	}

	value, ok := sec.Data[ref.Key]
	if !ok {
		return "", fmt.Errorf("%w: key %q in %s/%s", ErrSecretNotFound, ref.Key, ref.Mount, ref.Path)
	}
	val, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value at %s is not a string", ref)
	}

	if v.ttl > 0 {
		v.cacheMu.Lock()
		v.cache[ref] = cached{val: val, exp: v.now().Add(v.ttl)}
		v.cacheMu.Unlock()
	}

	return val, nil
}
