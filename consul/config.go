package consul

import (
	"fmt"
	"strings"
	"time"
)

// Defaults for Config.
const (
	DefaultAddress = "localhost:8500"
	DefaultScheme  = "http"
	DefaultTimeout = 5 * time.Second
)

// Config holds Consul connection settings.
type Config struct {
	// Address is the Consul agent address (default: localhost:8500). A
	// leading "http://" or "https://" selects the scheme.
	Address string `yaml:"address" mapstructure:"address"`

	// Scheme is the URI scheme (http/https).
	Scheme string `yaml:"scheme" mapstructure:"scheme"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults sets defaults and splits a scheme prefix off Address.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	for _, scheme := range []string{"http", "https"} {
		if rest, ok := strings.CutPrefix(c.Address, scheme+"://"); ok {
			c.Address = strings.TrimSuffix(rest, "/")
			c.Scheme = scheme
		}
	}
	if c.Scheme == "" {
		c.Scheme = DefaultScheme
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks if the Consul configuration is valid.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("consul address is required")
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("consul scheme must be 'http' or 'https', got '%s'", c.Scheme)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

// BaseURL returns scheme://address.
func (c *Config) BaseURL() string {
	return c.Scheme + "://" + c.Address
}
