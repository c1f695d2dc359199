// Package bootstrap assembles PhotoFlow binaries: typed config
// handling, component registration, dependency injection, and hooks
// around a finite task.
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app.RegisterComponent(eng)
//	app.RunTask(ctx, func(ctx context.Context) error {
//	    _, err := eng.Scan(ctx, opts)
//	    return err
//	})
//
// RunTask starts the registered components, runs the task with a
// context that SIGINT or SIGTERM cancels, and tears the components
// down when the task returns.
package bootstrap
