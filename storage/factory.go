package storage

import (
	"context"
	"fmt"

	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/util"
)

// Factory creates a Provider from a validated configuration.
type Factory func(ctx context.Context, cfg Config, log *logger.Logger) (Provider, error)

// factories maps provider names to their factories. Registration happens
// from provider package init functions, before any call to New, so the
// map needs no locking.
var factories = make(map[string]Factory)

// RegisterFactory registers a provider factory under the given name.
// Providers call it from init; importing a provider package is enough
// to make it available:
//
//	import _ "github.com/sean-she/photoflow-storage/storage/s3"
func RegisterFactory(name string, f Factory) {
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("storage: duplicate factory registration for %q", name))
	}
	factories[name] = f
}

// New builds a Provider from cfg. It applies defaults, validates the
// configuration and dispatches to the registered factory.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	f, ok := factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("storage: no factory registered for provider %q (missing import?)", cfg.Provider)
	}

	p, err := f(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("storage: initializing %s provider: %w", cfg.Provider, err)
	}

	fields := logger.Fields(logger.FieldProvider, cfg.Provider)
	if cfg.AccessKey != "" {
		fields["access_key"] = util.MaskSecret(cfg.AccessKey, 4)
	}
	log.WithComponent("storage").Info("storage provider initialized", fields)
	return p, nil
}
