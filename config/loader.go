package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable consulagent reads.
const EnvPrefix = "CONSULAGENT"

// FileSystem interface for file operations (useful for testing).
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadEnv loads a .env file without overriding variables already set.
func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// DefaultConfigPaths are searched in order when no config file is given.
var DefaultConfigPaths = []string{
	"./consulagent.yml",
	"./config/consulagent.yml",
	"/etc/consulagent/consulagent.yml",
}

// DefaultEnvPaths are searched in order when no .env file is given.
var DefaultEnvPaths = []string{
	"./.env",
}

// FlagBindings maps flag names to config keys. Flags missing from the bound
// set are skipped.
var FlagBindings = map[string]string{
	"consul":     "backend.address",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"interval":   "registration.check_interval",
	"timeout":    "registration.check_timeout",
	"deregister": "registration.deregister_after",
	"factor-map": "registration.factor_map_path",
}

// Resolver handles finding and resolving config and env files.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles returns explicit paths if provided, otherwise the first
// existing default path.
func (cr *Resolver) ResolveFiles(opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = cr.first(DefaultConfigPaths)
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = cr.first(DefaultEnvPaths)
	}
	return resolved
}

func (cr *Resolver) first(paths []string) string {
	for _, path := range paths {
		if cr.FileSystem.Exists(path) {
			return path
		}
	}
	return ""
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // Direct config file path (optional)
	EnvFile    string // Direct env file path (optional)
	Flags      *pflag.FlagSet
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path. It must exist.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path. It must exist.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithFlags binds the flags named in FlagBindings. A flag takes effect only
// when set on the command line.
func WithFlags(fs *pflag.FlagSet) LoaderOption {
	return func(lc *LoaderConfig) { lc.Flags = fs }
}

// Load resolves, merges, defaults and validates the configuration.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}

	if lc.ConfigFile != "" && !lc.FileSystem.Exists(lc.ConfigFile) {
		return nil, fmt.Errorf("config file %s not found", lc.ConfigFile)
	}
	if lc.EnvFile != "" && !lc.FileSystem.Exists(lc.EnvFile) {
		return nil, fmt.Errorf("env file %s not found", lc.EnvFile)
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(lc)

	cfg, err := loadFromResolvedFiles(files, lc)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromResolvedFiles loads configuration from specific files.
func loadFromResolvedFiles(files ResolvedFiles, lc LoaderConfig) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// 1. YAML config (base configuration)
	if files.ConfigFile != "" {
		v.SetConfigFile(files.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", files.ConfigFile, err)
		}
	}

	// 2. .env file; real environment variables keep precedence
	if files.EnvFile != "" {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load .env file %s: %w", files.EnvFile, err)
		}
	}

	// 3. Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Flags
	if lc.Flags != nil {
		for name, key := range FlagBindings {
			if f := lc.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every default as a viper default so AutomaticEnv
// can resolve each key.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("backend.address", d.Backend.Address)
	v.SetDefault("backend.scheme", d.Backend.Scheme)
	v.SetDefault("backend.timeout", d.Backend.Timeout)

	v.SetDefault("registration.factor_map_path", d.Registration.FactorMapPath)
	v.SetDefault("registration.check_interval", d.Registration.CheckInterval)
	v.SetDefault("registration.check_timeout", d.Registration.CheckTimeout)
	v.SetDefault("registration.deregister_after", d.Registration.DeregisterAfter)
	v.SetDefault("registration.check_name", d.Registration.CheckName)

	v.SetDefault("probe.metadata_source", d.Probe.MetadataSource)
	v.SetDefault("probe.metadata_command", d.Probe.MetadataCommand)
	v.SetDefault("probe.metadata_timeout", d.Probe.MetadataTimeout)
	v.SetDefault("probe.imds_endpoint", d.Probe.IMDSEndpoint)
	v.SetDefault("probe.route_probe_target", d.Probe.RouteProbeTarget)

	v.SetDefault("agent.data_dir", d.Agent.DataDir)
	v.SetDefault("agent.log_level", d.Agent.LogLevel)
	v.SetDefault("agent.client_addr", d.Agent.ClientAddr)
	v.SetDefault("agent.retry_interval", d.Agent.RetryInterval)
	v.SetDefault("agent.raft_protocol", d.Agent.RaftProtocol)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.no_color", d.Logging.NoColor)
	v.SetDefault("logging.caller", d.Logging.Caller)

	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
	v.SetDefault("telemetry.interval", d.Telemetry.Interval)
}
