package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sean-she/photoflow-storage/component"
	"github.com/sean-she/photoflow-storage/di"
	"github.com/sean-she/photoflow-storage/logger"
)

const defaultGracefulTimeout = 15 * time.Second

// App wires config, logging, DI, and registered components into one
// startable unit. The type parameter C is the concrete config type;
// any struct embedding config.ServiceConfig satisfies the constraint,
// and callbacks see C without type assertions:
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*appConfig]) error {
//	    return a.Container.RegisterSingleton("provider", a.Cfg.Provider())
//	})
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Container  di.Container
	Components *component.Registry
	Logger     *logger.Logger
	Summary    *Summary

	gracefulTimeout time.Duration
	quiet           bool
	onConfigure     []func(ctx context.Context, app *App[C]) error
	onStop          []Hook
}

// NewApp applies defaults to cfg, validates it, and assembles an App
// around it. The logger comes from the config's Logging section unless
// WithLogger overrides it.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)
	base := cfg.GetServiceConfig()

	app := &App[C]{
		Name:       base.Name,
		Version:    base.Version,
		Cfg:        cfg,
		Components: component.NewRegistry(),
	}
	app.Summary = NewSummary(app.Name, app.Version)
	app.quiet = o.quiet

	app.Container = o.container
	if app.Container == nil {
		app.Container = di.NewContainer()
	}

	app.gracefulTimeout = defaultGracefulTimeout
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}

	app.Logger = o.logger
	if app.Logger == nil {
		logger.Init(&base.Logging)
		app.Logger = logger.GetGlobalLogger()
	}
	return app, nil
}

// RegisterComponent adds c to the registry. Components start in
// registration order and stop in reverse.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// OnConfigure registers a callback that runs after components have
// started. Wiring that needs a live component goes here.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// ReadyCheck fails when any registered component reports a status
// other than healthy.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	var failing []string
	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status == component.StatusHealthy {
			continue
		}
		detail := h.Name + "=" + string(h.Status)
		if h.Message != "" {
			detail += " (" + h.Message + ")"
		}
		failing = append(failing, detail)
	}
	if len(failing) == 0 {
		return nil
	}
	return fmt.Errorf("unhealthy components: %v", failing)
}

// RunTask brings the components up, runs task, and tears everything
// down again. A startup failure is unwound the same way, and the
// startup error is the one returned. SIGINT and SIGTERM cancel the
// task's context; teardown still runs. When both the task and the
// teardown fail, the task's error wins.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		a.stop()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := a.cancelOnSignal(runCtx, cancel)
	defer release()

	err := task(runCtx)
	if stopErr := a.stop(); err == nil {
		err = stopErr
	}
	return err
}

// cancelOnSignal cancels the task context on SIGINT or SIGTERM. The
// returned func releases the signal handler.
func (a *App[C]) cancelOnSignal(ctx context.Context, cancel context.CancelFunc) func() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signals:
			a.Logger.Info("Signal received, canceling task",
				logger.Fields("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return func() { signal.Stop(signals) }
}

// startup brings the app to ready: components first, then the
// configure callbacks that need them, then a health pass. An unhealthy
// component logs a warning rather than aborting; the task may still be
// able to run against the components that did come up.
func (a *App[C]) startup(ctx context.Context) error {
	started := time.Now()
	a.Logger.Info("Starting", logger.Fields("name", a.Name, "version", a.Version))

	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	if err := a.configure(ctx); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("Ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
	}

	a.Summary.SetStartupDuration(time.Since(started))
	if !a.quiet {
		a.DisplaySummary()
	}
	return nil
}

func (a *App[C]) configure(ctx context.Context) error {
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// DisplaySummary prints the startup banner, collecting infrastructure
// and health from the component registry and DI container.
func (a *App[C]) DisplaySummary() {
	a.Summary.DisplaySummary(a.Components, a.Container)
}

// stop tears the app down inside the graceful timeout: OnStop hooks,
// components in reverse start order, then the container's lazy
// instances. The first error is kept; later steps still run.
func (a *App[C]) stop() error {
	a.Logger.Info("Shutting down", logger.Fields("timeout", a.gracefulTimeout.String()))
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var firstErr error
	fail := func(err error, msg string) {
		if err == nil {
			return
		}
		a.Logger.Error(msg, logger.Fields(logger.FieldError, err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}

	fail(runHooks(ctx, a.onStop), "Stop hook error")
	fail(a.Components.StopAll(ctx), "Component stop error")
	fail(a.Container.Close(), "Container close error")

	a.Logger.Info("Shutdown complete")
	return firstErr
}
