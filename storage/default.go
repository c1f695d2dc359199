package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/sean-she/photoflow-storage/logger"
)

// ErrNoDefault is returned by Default when no provider has been installed.
var ErrNoDefault = errors.New("storage: no default provider configured")

var (
	defaultMu       sync.RWMutex
	defaultProvider Provider
)

// Default returns the process-wide default provider. Callers that hold a
// provider handle should prefer it; Default exists for code paths where
// threading one through is impractical.
func Default() (Provider, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultProvider == nil {
		return nil, ErrNoDefault
	}
	return defaultProvider, nil
}

// SetDefault installs p as the process-wide default provider, replacing
// any previous one. Passing nil clears the default.
func SetDefault(p Provider) {
	defaultMu.Lock()
	defaultProvider = p
	defaultMu.Unlock()
}

// InitDefault builds a provider from cfg and installs it as the default.
// The provider is also returned so the caller can keep a direct handle.
func InitDefault(ctx context.Context, cfg Config, log *logger.Logger) (Provider, error) {
	p, err := New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	SetDefault(p)
	return p, nil
}
