package config

import (
	"fmt"
	"time"

	"github.com/kbukum/consulagent/agentconfig"
	"github.com/kbukum/consulagent/balance"
	"github.com/kbukum/consulagent/consul"
	"github.com/kbukum/consulagent/logger"
	"github.com/kbukum/consulagent/observability"
	"github.com/kbukum/consulagent/probe"
	"github.com/kbukum/consulagent/registration"
	"github.com/kbukum/consulagent/validation"
)

// ServiceName is the name consulagent reports in logs and telemetry.
const ServiceName = "consulagent"

// Config is the complete consulagent configuration.
type Config struct {
	Backend      consul.Config        `yaml:"backend" mapstructure:"backend"`
	Registration RegistrationConfig   `yaml:"registration" mapstructure:"registration"`
	Probe        probe.Config         `yaml:"probe" mapstructure:"probe"`
	Agent        agentconfig.Settings `yaml:"agent" mapstructure:"agent"`
	Logging      logger.Config        `yaml:"logging" mapstructure:"logging"`
	Telemetry    TelemetryConfig      `yaml:"telemetry" mapstructure:"telemetry"`
}

// RegistrationConfig holds registration defaults.
type RegistrationConfig struct {
	FactorMapPath   string `yaml:"factor_map_path" mapstructure:"factor_map_path"`
	CheckInterval   string `yaml:"check_interval" mapstructure:"check_interval" validate:"omitempty,duration"`
	CheckTimeout    string `yaml:"check_timeout" mapstructure:"check_timeout" validate:"omitempty,duration"`
	DeregisterAfter string `yaml:"deregister_after" mapstructure:"deregister_after" validate:"omitempty,duration"`
	CheckName       string `yaml:"check_name" mapstructure:"check_name"`
}

// ApplyDefaults fills empty fields.
func (c *RegistrationConfig) ApplyDefaults() {
	if c.FactorMapPath == "" {
		c.FactorMapPath = balance.DefaultWeightTablePath
	}
	if c.CheckInterval == "" {
		c.CheckInterval = balance.DefaultCheckInterval
	}
	if c.CheckTimeout == "" {
		c.CheckTimeout = balance.DefaultCheckTimeout
	}
	if c.DeregisterAfter == "" {
		c.DeregisterAfter = balance.DefaultDeregisterAfter
	}
	if c.CheckName == "" {
		c.CheckName = registration.DefaultCheckName
	}
}

// TelemetryConfig configures OTLP export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"min=0,max=1"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills empty fields.
func (c *TelemetryConfig) ApplyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every empty field.
func (c *Config) ApplyDefaults() {
	c.Backend.ApplyDefaults()
	c.Registration.ApplyDefaults()
	c.Probe.ApplyDefaults()
	c.Agent.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("config.backend: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.%w", err)
	}
	if c.Probe.MetadataTimeout < 0 {
		return fmt.Errorf("config.probe: metadata_timeout must be non-negative")
	}
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// BalanceDefaults returns the defaults value shared by the resolver and the
// registration builder.
func (c *Config) BalanceDefaults() balance.Defaults {
	d := balance.DefaultDefaults()
	d.WeightTablePath = c.Registration.FactorMapPath
	d.BackendAddress = c.Backend.Address
	d.CheckInterval = c.Registration.CheckInterval
	d.CheckTimeout = c.Registration.CheckTimeout
	d.DeregisterAfter = c.Registration.DeregisterAfter
	return d
}

// Observability returns the telemetry settings for observability.Setup.
func (c *Config) Observability(version string) observability.Config {
	return observability.Config{
		ServiceName:    ServiceName,
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
		Interval:       c.Telemetry.Interval,
	}
}
