package component

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sean-she/photoflow-storage/logger"
)

// stopTimeout bounds each individual Stop call so one hung component
// cannot consume the whole shutdown window.
const stopTimeout = 10 * time.Second

// registration pairs a component with whether its Start succeeded.
// StopAll uses the flag to skip components that never came up.
type registration struct {
	c       Component
	started bool
}

// Registry drives a set of components as a group: StartAll walks them
// in registration order, StopAll in reverse. Register dependencies
// before their dependents.
type Registry struct {
	mu      sync.RWMutex
	entries []*registration
	byName  map[string]*registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*registration)}
}

// Register adds c. Component names must be unique.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component %s already registered", name)
	}
	reg := &registration{c: c}
	r.entries = append(r.entries, reg)
	r.byName[name] = reg
	return nil
}

// StartAll starts every component in registration order and returns at
// the first failure. Components started before the failure stay marked
// as started, so the caller can still run StopAll to unwind them.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.entries {
		name := reg.c.Name()
		begin := time.Now()
		if err := reg.c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		reg.started = true
		logger.Debug("Component started", logger.Fields(
			logger.FieldComponent, name,
			logger.FieldDuration, time.Since(begin).Milliseconds(),
		))
	}
	return nil
}

// StopAll stops started components in reverse registration order. Each
// Stop gets its own timeout, and one failure does not keep the rest
// from stopping; the collected errors come back joined.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		reg := r.entries[i]
		if !reg.started {
			continue
		}
		reg.started = false

		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		err := reg.c.Stop(stopCtx)
		cancel()
		if err != nil {
			name := reg.c.Name()
			logger.Error("Component stop failed", logger.Fields(
				logger.FieldComponent, name,
				logger.FieldError, err.Error(),
			))
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// HealthAll probes every component in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg.c.Health(ctx))
	}
	return out
}

// Get returns the component registered under name, nil when absent.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg, ok := r.byName[name]; ok {
		return reg.c
	}
	return nil
}

// All returns the components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Component, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg.c)
	}
	return out
}
