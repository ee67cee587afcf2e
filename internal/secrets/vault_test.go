package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	vault "github.com/hashicorp/vault/api"
)

const kvResponse = `{
  "data": {
    "data": {"secret_key": "s3cr3t", "port": 8080},
    "metadata": {
      "created_time": "2018-03-22T02:24:06.945319214Z",
      "custom_metadata": null,
      "deletion_time": "",
      "destroyed": false,
      "version": 1
    }
  }
}`

func newTestVault(t *testing.T, opts ...VaultOption) (*Vault, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		switch r.URL.Path {
		case "/v1/secret/data/confidant":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(kvResponse))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	t.Cleanup(srv.Close)

	cfg := vault.DefaultConfig()
	cfg.Address = srv.URL
	cfg.MaxRetries = 0

	v, err := NewVault(cfg, "test-token", opts...)
	if err != nil {
		t.Fatalf("NewVault returned error: %v", err)
	}
	return v, &hits
}

func TestVaultResolve(t *testing.T) {
	v, _ := newTestVault(t)

	got, err := v.Resolve(context.Background(), "vault:secret/confidant#secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "s3cr3t" {
		t.Fatalf("expected s3cr3t, got %q", got)
	}
}

func TestVaultResolveMissingKey(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.Resolve(context.Background(), "vault:secret/confidant#nope")
	if !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestVaultResolveMissingSecret(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.Resolve(context.Background(), "vault:secret/other#secret_key")
	if !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestVaultResolveNonStringValue(t *testing.T) {
	v, _ := newTestVault(t)

	if _, err := v.Resolve(context.Background(), "vault:secret/confidant#port"); err == nil {
		t.Fatalf("expected error for non-string value")
	}
}

func TestVaultResolveInvalidReference(t *testing.T) {
	v, hits := newTestVault(t)

	_, err := v.Resolve(context.Background(), "vault:secret")
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request for invalid reference, got %d", hits.Load())
	}
}

func TestVaultResolveCachesWithinTTL(t *testing.T) {
	v, hits := newTestVault(t, WithCacheTTL(time.Minute))
	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	const ref = "vault:secret/confidant#secret_key"
	for range 3 {
		if _, err := v.Resolve(context.Background(), ref); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one upstream request, got %d", hits.Load())
	}

	now = now.Add(2 * time.Minute)
	if _, err := v.Resolve(context.Background(), ref); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected cache expiry to refetch, got %d requests", hits.Load())
	}
}
