package bootstrap

import (
	"context"
	"fmt"
)

// Hook is a startup or shutdown callback.
type Hook func(ctx context.Context) error

// OnStop registers hooks to run during shutdown, before components
// stop. Telemetry flushes and audit sink closes go here.
func (a *App[C]) OnStop(hooks ...Hook) {
	a.onStop = append(a.onStop, hooks...)
}

// runHooks runs hooks in order, stopping at the first error.
func runHooks(ctx context.Context, hooks []Hook) error {
	for i, h := range hooks {
		if err := h(ctx); err != nil {
			return fmt.Errorf("hook %d: %w", i, err)
		}
	}
	return nil
}
