// Package config loads layered service configuration: a YAML file as the
// base, environment variables over it, and an optional .env file on top.
// Underscore-separated variables map onto nested keys, so
// ENGINE_STORAGE_BUCKET overrides engine.storage.bucket.
//
// Programs embed ServiceConfig in their own config struct and load it by
// service name:
//
//	type appConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Engine engine.Config `yaml:"engine" mapstructure:"engine"`
//	}
//
//	var cfg appConfig
//	err := config.LoadConfig("photoflow-lifecycle", &cfg)
package config
