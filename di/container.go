package di

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/resilience"
)

// RegistrationMode determines when a component is constructed.
type RegistrationMode int

const (
	Lazy      RegistrationMode = iota // constructed on first resolve
	Eager                             // constructed at registration
	Singleton                         // pre-built instance
)

// Container holds named components and resolves them on demand.
type Container interface {
	Register(key string, constructor interface{}) error
	RegisterLazy(key string, constructor interface{}, options ...LazyOption) error
	RegisterEager(key string, constructor interface{}) error
	RegisterSingleton(key string, instance interface{}) error
	Resolve(key string) (interface{}, error)
	Registrations() []RegistrationInfo
	Close() error
}

// RegistrationInfo describes one registered component for introspection.
type RegistrationInfo struct {
	Key         string
	Mode        RegistrationMode
	Initialized bool
}

// LazyOption tunes one lazy registration.
type LazyOption func(*registration)

// WithRetry sets the retry policy used when a lazy constructor fails.
func WithRetry(cfg resilience.RetryConfig) LazyOption {
	return func(r *registration) { r.retry = cfg }
}

type registration struct {
	key         string
	constructor interface{}
	mode        RegistrationMode
	retry       resilience.RetryConfig

	mu          sync.Mutex
	instance    interface{}
	initialized bool
}

type container struct {
	mu         sync.RWMutex
	components map[string]*registration
	singletons map[string]interface{}
	order      []string
}

// NewContainer returns an empty container.
func NewContainer() Container {
	return &container{
		components: make(map[string]*registration),
		singletons: make(map[string]interface{}),
	}
}

// Register adds a lazily constructed component, the common case.
func (c *container) Register(key string, constructor interface{}) error {
	return c.RegisterLazy(key, constructor)
}

// RegisterLazy adds a component constructed on first Resolve. Failed
// constructions are retried on the next Resolve.
func (c *container) RegisterLazy(key string, constructor interface{}, options ...LazyOption) error {
	if err := validConstructor(constructor); err != nil {
		return fmt.Errorf("di: register %s: %w", key, err)
	}
	reg := &registration{
		key:         key,
		constructor: constructor,
		mode:        Lazy,
		retry:       lazyRetryDefaults(),
	}
	for _, opt := range options {
		opt(reg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken(key) {
		return fmt.Errorf("di: %s already registered", key)
	}
	c.components[key] = reg
	c.order = append(c.order, key)
	return nil
}

// RegisterEager constructs the component immediately and fails the
// registration if the constructor does.
func (c *container) RegisterEager(key string, constructor interface{}) error {
	if err := validConstructor(constructor); err != nil {
		return fmt.Errorf("di: register %s: %w", key, err)
	}
	instance, err := c.construct(constructor)
	if err != nil {
		return fmt.Errorf("di: construct %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken(key) {
		return fmt.Errorf("di: %s already registered", key)
	}
	c.components[key] = &registration{
		key:         key,
		mode:        Eager,
		instance:    instance,
		initialized: true,
	}
	c.order = append(c.order, key)
	return nil
}

// RegisterSingleton stores a pre-built instance under key.
func (c *container) RegisterSingleton(key string, instance interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken(key) {
		return fmt.Errorf("di: %s already registered", key)
	}
	c.singletons[key] = instance
	c.order = append(c.order, key)
	return nil
}

func (c *container) taken(key string) bool {
	if _, ok := c.components[key]; ok {
		return true
	}
	_, ok := c.singletons[key]
	return ok
}

// Resolve returns the component registered under key, constructing it
// first when the registration is lazy.
func (c *container) Resolve(key string) (interface{}, error) {
	c.mu.RLock()
	if instance, ok := c.singletons[key]; ok {
		c.mu.RUnlock()
		return instance, nil
	}
	reg, ok := c.components[key]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("di: %s not registered", key)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.initialized {
		return reg.instance, nil
	}

	instance, err := resilience.Retry(context.Background(), reg.retry, func() (interface{}, error) {
		return c.construct(reg.constructor)
	})
	if err != nil {
		logger.Debug("lazy component construction failed", map[string]interface{}{
			"component": key,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("di: construct %s: %w", key, err)
	}

	reg.instance = instance
	reg.initialized = true
	return instance, nil
}

// Registrations lists every registered component in registration order.
func (c *container) Registrations() []RegistrationInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]RegistrationInfo, 0, len(c.order))
	for _, key := range c.order {
		if _, ok := c.singletons[key]; ok {
			infos = append(infos, RegistrationInfo{Key: key, Mode: Singleton, Initialized: true})
			continue
		}
		reg := c.components[key]
		reg.mu.Lock()
		infos = append(infos, RegistrationInfo{Key: key, Mode: reg.mode, Initialized: reg.initialized})
		reg.mu.Unlock()
	}
	return infos
}

// Close closes every constructed component that implements Close, in
// reverse registration order.
func (c *container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for i := len(c.order) - 1; i >= 0; i-- {
		key := c.order[i]

		var instance interface{}
		if s, ok := c.singletons[key]; ok {
			instance = s
		} else if reg, ok := c.components[key]; ok {
			reg.mu.Lock()
			if reg.initialized {
				instance = reg.instance
			}
			reg.mu.Unlock()
		}

		if closer, ok := instance.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("di: close %s: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// lazyRetryDefaults is a single attempt; registrations opt into real
// retries with WithRetry.
func lazyRetryDefaults() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 1
	return cfg
}

func validConstructor(constructor interface{}) error {
	fn := reflect.ValueOf(constructor)
	if fn.Kind() != reflect.Func {
		return errors.New("constructor must be a function")
	}
	switch fn.Type().NumOut() {
	case 1, 2:
		return nil
	default:
		return errors.New("constructor must return (instance) or (instance, error)")
	}
}

// construct invokes a constructor of one of the supported shapes:
// func() T, func() (T, error), func(context.Context) (T, error) or
// func(Container) (T, error).
func (c *container) construct(constructor interface{}) (interface{}, error) {
	fn := reflect.ValueOf(constructor)
	fnType := fn.Type()

	var args []reflect.Value
	if fnType.NumIn() == 1 {
		if fnType.In(0).String() == "context.Context" {
			args = []reflect.Value{reflect.ValueOf(context.Background())}
		} else {
			args = []reflect.Value{reflect.ValueOf(Container(c))}
		}
	} else if fnType.NumIn() > 1 {
		return nil, errors.New("constructor takes at most one argument")
	}

	results := fn.Call(args)
	switch len(results) {
	case 1:
		return results[0].Interface(), nil
	case 2:
		instance := results[0].Interface()
		if err := results[1].Interface(); err != nil {
			return nil, err.(error)
		}
		return instance, nil
	default:
		return nil, errors.New("constructor must return (instance) or (instance, error)")
	}
}
