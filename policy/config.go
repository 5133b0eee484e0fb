package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the declarative, serialisable posture loaded from a policy file:
//
//	mode: prod
//	overrides:
//	  deploy: forbid
//	  write: review
//
// Unknown capabilities, decisions or modes are configuration errors and fail
// loading; a missing overrides block means no overrides.
type Config struct {
	Mode      string            `yaml:"mode" json:"mode"`
	Overrides map[string]string `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// LoadConfig reads and validates a policy file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if _, err := cfg.engineOptions(); err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return &cfg, nil
}

// NewEngine builds an Engine from the config.
func (c *Config) NewEngine() (*Engine, error) {
	options, err := c.engineOptions()
	if err != nil {
		return nil, err
	}
	return NewEngine(options...)
}

func (c *Config) engineOptions() ([]Option, error) {
	var options []Option
	if c.Mode != "" {
		mode, err := ParseMode(c.Mode)
		if err != nil {
			return nil, err
		}
		options = append(options, WithMode(mode))
	}
	if len(c.Overrides) > 0 {
		overrides := make(map[Capability]Decision, len(c.Overrides))
		for capability, decision := range c.Overrides {
			parsedCap, err := ParseCapability(capability)
			if err != nil {
				return nil, err
			}
			parsedDecision, err := ParseDecision(decision)
			if err != nil {
				return nil, err
			}
			overrides[parsedCap] = parsedDecision
		}
		options = append(options, WithOverrides(overrides))
	}
	return options, nil
}
