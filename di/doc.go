// Package di is a small keyed dependency container.
//
// Registrations go in under string keys in one of three modes: eager
// (built immediately), lazy (built on first resolve, optionally
// retried), and singleton (a value supplied up front). The generic
// helpers narrow resolved instances so call sites skip the type
// assertions:
//
//	c := di.NewContainer()
//	c.RegisterSingleton(di.Core.Audit, auditLog)
//	c.RegisterLazy(di.Core.Engine, func() (*engine.Engine, error) {
//	    return engine.New(cfg, log), nil
//	})
//
//	eng, err := di.Resolve[*engine.Engine](c, di.Core.Engine)
//
// Core names the well-known keys the CLI assembles.
package di
