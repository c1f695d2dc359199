package bootstrap

import (
	"time"

	"github.com/sean-she/photoflow-storage/di"
	"github.com/sean-she/photoflow-storage/logger"
)

// Option adjusts how NewApp assembles the application. Options are
// non-generic so one option list works for any config type.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	container       di.Container
	gracefulTimeout *time.Duration
	quiet           bool
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger supplies a logger instead of initializing one from the
// config's Logging section.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) { o.logger = l }
}

// WithGracefulTimeout bounds how long shutdown may take.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) { o.gracefulTimeout = &d }
}

// WithContainer supplies a pre-populated DI container.
func WithContainer(c di.Container) Option {
	return func(o *appOptions) { o.container = c }
}

// WithQuietStartup suppresses the startup summary banner, keeping
// stdout free for command output.
func WithQuietStartup() Option {
	return func(o *appOptions) { o.quiet = true }
}
