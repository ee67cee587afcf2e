// Package secrets resolves secret references of the form
// "vault:<mount>/<path>#<key>" into plain values at startup.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ReferencePrefix marks a configuration value as a secret store reference.
const ReferencePrefix = "vault:"

var (
	// ErrInvalidReference indicates a reference that cannot be parsed.
	ErrInvalidReference = errors.New("invalid secret reference")
	// ErrSecretNotFound indicates the store has no value for the reference.
	ErrSecretNotFound = errors.New("secret not found")
)

// Resolver turns a reference into the secret it points at.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Reference is a parsed "vault:<mount>/<path>#<key>" value.
type Reference struct {
	Mount string
	Path  string
	Key   string
}

func (r Reference) String() string {
	return ReferencePrefix + r.Mount + "/" + r.Path + "#" + r.Key
}

// IsReference reports whether s carries the reference prefix.
func IsReference(s string) bool {
	return strings.HasPrefix(s, ReferencePrefix)
}

// ParseReference splits a reference into mount, path, and key.
func ParseReference(s string) (Reference, error) {
	if !IsReference(s) {
		return Reference{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidReference, ReferencePrefix)
	}
	body := strings.TrimPrefix(s, ReferencePrefix)

	location, key, ok := strings.Cut(body, "#")
	if !ok || key == "" {
		return Reference{}, fmt.Errorf("%w: %q has no #key", ErrInvalidReference, s)
	}

	mount, path, ok := strings.Cut(strings.Trim(location, "/"), "/")
	if !ok || mount == "" || path == "" {
		return Reference{}, fmt.Errorf("%w: %q needs <mount>/<path>", ErrInvalidReference, s)
	}

	return Reference{Mount: mount, Path: path, Key: key}, nil
}
