package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// Dump renders the configuration as YAML with the password masked.
func (c *Config) Dump() ([]byte, error) {
	view := *c
	if view.Matrix.Password != "" {
		view.Matrix.Password = redacted
	}

	out, err := yaml.Marshal(struct {
		Config `yaml:",inline"`
		Debug  string `yaml:"debug,omitempty"`
	}{Config: view, Debug: c.Debug.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to render configuration: %w", err)
	}
	return out, nil
}
