package bootstrap

import (
	"github.com/sean-she/photoflow-storage/config"
)

// Config constrains application config types. Embedding
// config.ServiceConfig by value satisfies it through promoted methods:
//
//	type appConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Engine engine.Config `yaml:"engine" mapstructure:"engine"`
//	}
//
// Embedding structs that override ApplyDefaults or Validate should
// call the ServiceConfig method first.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
