package di

import "fmt"

// narrow asserts that a resolved instance has the requested type.
func narrow[T any](key string, instance any) (T, error) {
	v, ok := instance.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("di: %s holds %T, expected %T", key, instance, zero)
	}
	return v, nil
}

// Resolve fetches the component registered under key and narrows it to T.
//
//	gen, err := di.Resolve[*cdn.Generator](c, di.Core.CDN)
//	if err != nil {
//	    return fmt.Errorf("cdn generator unavailable: %w", err)
//	}
func Resolve[T any](c Container, key string) (T, error) {
	instance, err := c.Resolve(key)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("di: resolve %s: %w", key, err)
	}
	return narrow[T](key, instance)
}

// MustResolve is Resolve for wiring code where a missing dependency is a
// bug. It panics instead of returning an error.
//
//	eng := di.MustResolve[*engine.Engine](c, di.Core.Engine)
func MustResolve[T any](c Container, key string) T {
	v, err := Resolve[T](c, key)
	if err != nil {
		panic(err)
	}
	return v
}

// TryResolve reports whether an optional component is present with the
// requested type.
//
//	if log, ok := di.TryResolve[*audit.Log](c, di.Core.Audit); ok {
//	    log.Append(entry)
//	}
func TryResolve[T any](c Container, key string) (T, bool) {
	v, err := Resolve[T](c, key)
	return v, err == nil
}
