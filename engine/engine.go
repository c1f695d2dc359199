// Package engine composes a storage provider, lifecycle policy, CDN URL
// generator and audit log into one lifecycle-managed unit. Every engine
// instance is fully isolated; two engines share no state, so tests and
// multi-tenant processes can run them side by side.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sean-she/photoflow-storage/audit"
	"github.com/sean-she/photoflow-storage/cdn"
	"github.com/sean-she/photoflow-storage/component"
	"github.com/sean-she/photoflow-storage/lifecycle"
	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/storage"
	"github.com/sean-she/photoflow-storage/validation"
)

// Config assembles one engine instance.
type Config struct {
	Storage storage.Config `mapstructure:"storage" json:"storage"`
	CDN     cdn.Config     `mapstructure:"cdn" json:"cdn"`

	// PolicyFile is the path of the YAML lifecycle policy. Empty means an
	// empty policy: every file evaluates to no action.
	PolicyFile string `mapstructure:"policy_file" json:"policy_file,omitempty"`

	// AuditCapacity bounds the in-memory audit ring. Zero means the
	// audit package default.
	AuditCapacity int `mapstructure:"audit_capacity" json:"audit_capacity,omitempty"`

	// AuditFile, when set, additionally appends audit entries to this
	// file as JSON lines.
	AuditFile string `mapstructure:"audit_file" json:"audit_file,omitempty"`
}

// Validate checks assembly-level settings. Storage and CDN settings are
// validated by their own packages when Start builds the backends.
func (c *Config) Validate() error {
	v := validation.New()
	v.Min("audit_capacity", c.AuditCapacity, 0)
	if c.PolicyFile != "" {
		ext := filepath.Ext(c.PolicyFile)
		v.Custom(ext == ".yml" || ext == ".yaml", "policy_file", "must name a .yml or .yaml document")
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Engine owns the composed parts and manages their lifecycle. The zero
// value is not usable; construct with New.
type Engine struct {
	cfg        Config
	predicates *lifecycle.PredicateRegistry
	auditLog   *audit.Log
	log        *logger.Logger

	mu        sync.RWMutex
	started   bool
	policy    *lifecycle.Policy
	provider  storage.Provider
	evaluator *lifecycle.Evaluator
	scanner   *lifecycle.Scanner
	generator *cdn.Generator
	sink      *audit.FileSink
}

var _ component.Component = (*Engine)(nil)
var _ component.Describable = (*Engine)(nil)

// New creates an engine from cfg. Construction is cheap; backends are
// built by Start.
func New(cfg Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{
		cfg:        cfg,
		predicates: lifecycle.NewPredicateRegistry(),
		auditLog:   audit.NewLog(cfg.AuditCapacity),
		log:        log.WithComponent("engine"),
	}
}

// RegisterPredicate adds a named predicate for the policy to reference.
// Registration must happen before Start so policy validation can resolve
// the name.
func (e *Engine) RegisterPredicate(p lifecycle.Predicate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("engine: predicates must be registered before start")
	}
	return e.predicates.Register(p)
}

// SetPolicy installs a policy directly, taking precedence over
// Config.PolicyFile. It must be called before Start.
func (e *Engine) SetPolicy(p *lifecycle.Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("engine: policy must be set before start")
	}
	e.policy = p
	return nil
}

// Name returns the component name.
func (e *Engine) Name() string { return "lifecycle-engine" }

// Start builds the provider, compiles the policy and wires the CDN
// generator, scanner and audit sink. Starting a started engine is a
// no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	provider, err := storage.New(ctx, e.cfg.Storage, e.log)
	if err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	policy := e.policy
	if policy == nil && e.cfg.PolicyFile != "" {
		policy, err = lifecycle.LoadPolicyFile(e.cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("engine start: %w", err)
		}
	}
	if policy == nil {
		policy = &lifecycle.Policy{}
	}

	evaluator, err := lifecycle.NewEvaluator(policy, e.predicates)
	if err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	generator, err := cdn.NewGenerator(e.cfg.CDN, provider, e.log)
	if err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	if e.cfg.AuditFile != "" {
		sink, err := audit.NewFileSink(e.cfg.AuditFile)
		if err != nil {
			return fmt.Errorf("engine start: %w", err)
		}
		e.sink = sink
		e.auditLog.SetSink(sink)
	}

	e.policy = policy
	e.provider = provider
	e.evaluator = evaluator
	e.generator = generator
	e.scanner = lifecycle.NewScanner(provider, evaluator, e.auditLog, e.log)
	e.started = true

	e.log.Info("engine started", logger.Fields(
		logger.FieldProvider, provider.Name(),
		"rules", len(policy.Rules),
		"audit_capacity", e.auditLog.Capacity(),
	))
	return nil
}

// Stop detaches the audit sink and releases the composed parts. The
// audit ring survives for post-run inspection.
func (e *Engine) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}

	var err error
	if e.sink != nil {
		e.auditLog.SetSink(nil)
		err = e.sink.Close()
		e.sink = nil
	}
	e.provider = nil
	e.evaluator = nil
	e.scanner = nil
	e.generator = nil
	e.started = false

	e.log.Info("engine stopped")
	if err != nil {
		return fmt.Errorf("engine stop: %w", err)
	}
	return nil
}

// Health probes the provider with a one-key listing.
func (e *Engine) Health(ctx context.Context) component.Health {
	e.mu.RLock()
	provider := e.provider
	started := e.started
	e.mu.RUnlock()

	if !started {
		return component.Health{
			Name:    e.Name(),
			Status:  component.StatusUnhealthy,
			Message: "engine not started",
		}
	}
	if _, err := provider.List(ctx, storage.ListOptions{MaxResults: 1}); err != nil {
		return component.Health{
			Name:    e.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("provider probe failed: %v", err),
		}
	}
	return component.Health{Name: e.Name(), Status: component.StatusHealthy}
}

// Describe returns summary info for the startup log.
func (e *Engine) Describe() component.Description {
	e.mu.RLock()
	defer e.mu.RUnlock()

	details := fmt.Sprintf("provider=%s", e.cfg.Storage.Provider)
	if e.cfg.Storage.Bucket != "" {
		details += fmt.Sprintf(" bucket=%s", e.cfg.Storage.Bucket)
	}
	if e.policy != nil {
		details += fmt.Sprintf(" rules=%d", len(e.policy.Rules))
	}
	return component.Description{
		Name:    "Lifecycle Engine",
		Type:    "engine",
		Details: details,
	}
}

// Scan runs the lifecycle scanner with the compiled policy.
func (e *Engine) Scan(ctx context.Context, opts lifecycle.ScanOptions) (*lifecycle.ExecutionResult, error) {
	e.mu.RLock()
	scanner := e.scanner
	e.mu.RUnlock()
	if scanner == nil {
		return nil, errors.New("engine: not started")
	}
	return scanner.Run(ctx, opts)
}

// GenerateCDNURL returns the delivery URL for key.
func (e *Engine) GenerateCDNURL(ctx context.Context, key string, opts *cdn.Options) (string, error) {
	e.mu.RLock()
	generator := e.generator
	e.mu.RUnlock()
	if generator == nil {
		return "", errors.New("engine: not started")
	}
	return generator.URL(ctx, key, opts)
}

// Provider returns the storage provider, nil before Start.
func (e *Engine) Provider() storage.Provider {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.provider
}

// Generator returns the CDN URL generator, nil before Start.
func (e *Engine) Generator() *cdn.Generator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generator
}

// Audit returns the engine's audit log.
func (e *Engine) Audit() *audit.Log { return e.auditLog }

// Policy returns the compiled policy, nil before Start.
func (e *Engine) Policy() *lifecycle.Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}
