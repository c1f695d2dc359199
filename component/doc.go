// Package component standardizes how long-lived parts of the lifecycle
// engine start, stop, and report health.
//
// A Component is anything with a managed lifecycle: the storage
// provider, the audit log, the engine itself. The Registry holds them
// in registration order, starts them front to back, and stops them in
// reverse so dependents go down before what they depend on.
//
// Components that also implement Describable contribute a line to the
// startup banner.
package component
