package lifecycle

import (
	"fmt"
	"io"

	"github.com/spf13/viper"
)

// ParsePolicy decodes a YAML policy document from r and applies defaults.
// Validation happens when the policy is compiled into an Evaluator.
func ParsePolicy(r io.Reader) (*Policy, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("lifecycle: read policy: %w", err)
	}
	return unmarshalPolicy(v)
}

// LoadPolicyFile reads a YAML policy document from path.
func LoadPolicyFile(path string) (*Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("lifecycle: read policy file: %w", err)
	}
	return unmarshalPolicy(v)
}

func unmarshalPolicy(v *viper.Viper) (*Policy, error) {
	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("lifecycle: decode policy: %w", err)
	}
	p.ApplyDefaults()
	return &p, nil
}
