package config

import "fmt"

// ConfigError reports a missing or invalid setting. It is always fatal.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}
