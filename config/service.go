package config

import (
	"fmt"

	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/validation"
)

// Environments a service may declare.
var validEnvironments = []string{"development", "staging", "production"}

// ServiceConfig is the base every program's config embeds: identity,
// environment and logging. Embedding promotes its methods, so the outer
// struct satisfies the bootstrap Config interface for free:
//
//	type AppConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Engine engine.Config `yaml:"engine" mapstructure:"engine"`
//	}
type ServiceConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Version     string        `yaml:"version" mapstructure:"version"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

// GetServiceConfig returns the base config. Embedding structs inherit
// this accessor.
func (c *ServiceConfig) GetServiceConfig() *ServiceConfig {
	return c
}

// ApplyDefaults fills the base fields. Embedding structs override this
// and call c.ServiceConfig.ApplyDefaults() first.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	// The service name doubles as the logging tag unless one is set.
	if c.Logging.ServiceName == "" && c.Name != "" {
		c.Logging.ServiceName = c.Name
	}
	// Debug lowers the log level unless one was chosen explicitly.
	if c.Debug && c.Logging.Level == "" {
		c.Logging.Level = "debug"
	}
	c.Logging.ApplyDefaults()
}

// Validate checks the base fields. Embedding structs override this and
// call c.ServiceConfig.Validate() first.
func (c *ServiceConfig) Validate() error {
	v := validation.New()
	v.Required("name", c.Name).
		MaxLength("name", c.Name, 64).
		Pattern("name", c.Name, `^[a-z][a-z0-9-]*$`).
		Required("environment", c.Environment).
		OneOf("environment", c.Environment, validEnvironments)
	if appErr := v.Validate(); appErr != nil {
		return fmt.Errorf("config: %w", appErr)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}
