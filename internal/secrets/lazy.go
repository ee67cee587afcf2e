package secrets

import (
	"context"
	"sync"
)

// Lazy defers building a Resolver until the first Resolve call, so a
// process whose configuration holds no references never needs the store
// to be reachable or configured.
type Lazy struct {
	build func() (Resolver, error)

	once     sync.Once
	resolver Resolver
	err      error
}

// NewLazy returns a Lazy that calls build at most once.
func NewLazy(build func() (Resolver, error)) *Lazy {
	return &Lazy{build: build}
}

// Resolve builds the underlying resolver on first use and delegates to it.
// A build error is returned from every call.
func (l *Lazy) Resolve(ctx context.Context, ref string) (string, error) {
	l.once.Do(func() {
		l.resolver, l.err = l.build()
	})
	if l.err != nil {
		return "", l.err
	}
	return l.resolver.Resolve(ctx, ref)
}
