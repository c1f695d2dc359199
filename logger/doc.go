// Package logger is the module's structured logging facade over
// zerolog. Components take a *Logger; everything else falls back to the
// package-level functions, which write through the global logger that
// Init installs.
//
// Lines carry a service identity and optional field maps:
//
//	log := logger.NewDefault("scanner")
//	log.Info("scan complete", logger.Fields("evaluated", n))
//
// Output is JSON by default in services and a colored console format
// for the CLI, selected by Config.Format. WithContext tags every line
// of a derived logger with the execution ID that ContextWithExecutionID
// stored, so one scan's lines can be pulled out of interleaved output.
package logger
