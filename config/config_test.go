package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// mockFS reports only the listed paths as present.
type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(string) error    { return nil }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	checks := map[string]string{
		"backend.address":               d.Backend.Address,
		"backend.scheme":                d.Backend.Scheme,
		"registration.factor_map_path":  d.Registration.FactorMapPath,
		"registration.check_interval":   d.Registration.CheckInterval,
		"registration.check_timeout":    d.Registration.CheckTimeout,
		"registration.deregister_after": d.Registration.DeregisterAfter,
		"registration.check_name":       d.Registration.CheckName,
		"probe.metadata_source":         d.Probe.MetadataSource,
		"probe.metadata_command":        d.Probe.MetadataCommand,
		"probe.route_probe_target":      d.Probe.RouteProbeTarget,
		"agent.data_dir":                d.Agent.DataDir,
		"agent.client_addr":             d.Agent.ClientAddr,
		"logging.level":                 d.Logging.Level,
	}
	want := map[string]string{
		"backend.address":               "localhost:8500",
		"backend.scheme":                "http",
		"registration.factor_map_path":  "consul/factor_map.json",
		"registration.check_interval":   "10s",
		"registration.check_timeout":    "1s",
		"registration.deregister_after": "90m",
		"registration.check_name":       "check port",
		"probe.metadata_source":         "command",
		"probe.metadata_command":        "/opt/aws/bin/ec2-metadata",
		"probe.route_probe_target":      "8.8.8.8:80",
		"agent.data_dir":                "/usr/local/consul/data",
		"agent.client_addr":             "127.0.0.1",
		"logging.level":                 "info",
	}
	for key, got := range checks {
		if got != want[key] {
			t.Errorf("%s = %q, want %q", key, got, want[key])
		}
	}
	if d.Backend.Timeout != 5*time.Second {
		t.Errorf("backend.timeout = %v", d.Backend.Timeout)
	}
	if d.Agent.RaftProtocol != 3 {
		t.Errorf("agent.raft_protocol = %d", d.Agent.RaftProtocol)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadNoFiles(t *testing.T) {
	cfg, err := Load(WithFileSystem(&mockFS{}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Address != "localhost:8500" || cfg.Registration.CheckInterval != "10s" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "consulagent.yml", `
backend:
  address: consul.internal:8500
  timeout: 2s
registration:
  factor_map_path: consul/api/factor_map.json
  check_interval: 30s
agent:
  raft_protocol: 2
telemetry:
  endpoint: collector:4318
  sample_rate: 0.5
`)

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Address != "consul.internal:8500" || cfg.Backend.Timeout != 2*time.Second {
		t.Errorf("backend not loaded: %+v", cfg.Backend)
	}
	if cfg.Registration.FactorMapPath != "consul/api/factor_map.json" || cfg.Registration.CheckInterval != "30s" {
		t.Errorf("registration not loaded: %+v", cfg.Registration)
	}
	if cfg.Registration.CheckTimeout != "1s" {
		t.Errorf("unset key lost its default: %q", cfg.Registration.CheckTimeout)
	}
	if cfg.Agent.RaftProtocol != 2 {
		t.Errorf("agent not loaded: %+v", cfg.Agent)
	}
	obs := cfg.Observability("1.2.3")
	if !obs.Enabled() || obs.SampleRate != 0.5 || obs.ServiceVersion != "1.2.3" {
		t.Errorf("telemetry not loaded: %+v", obs)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "consulagent.yml", `
backend:
  address: from-file:8500
registration:
  check_interval: 20s
  check_timeout: 2s
`)
	envFile := writeFile(t, dir, ".env", "CONSULAGENT_REGISTRATION_CHECK_TIMEOUT=3s\nCONSULAGENT_REGISTRATION_DEREGISTER_AFTER=2h\n")

	t.Setenv("CONSULAGENT_BACKEND_ADDRESS", "from-env:8500")
	t.Setenv("CONSULAGENT_REGISTRATION_CHECK_INTERVAL", "40s")
	t.Setenv("CONSULAGENT_REGISTRATION_DEREGISTER_AFTER", "3h")
	// godotenv sets variables for the process; drop the ones it may add.
	t.Cleanup(func() { os.Unsetenv("CONSULAGENT_REGISTRATION_CHECK_TIMEOUT") })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("consul", "c", "", "")
	fs.StringP("interval", "i", "", "")
	if err := fs.Parse([]string{"-i", "50s"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(WithConfigFile(path), WithEnvFile(envFile), WithFlags(fs))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		key, got, want string
	}{
		{"flag beats env", cfg.Registration.CheckInterval, "50s"},
		{"env beats file", cfg.Backend.Address, "from-env:8500"},
		{".env beats file", cfg.Registration.CheckTimeout, "3s"},
		{"env beats .env", cfg.Registration.DeregisterAfter, "3h"},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.key, tc.got, tc.want)
		}
	}
}

func TestLoadUnsetFlagDoesNotOverride(t *testing.T) {
	t.Setenv("CONSULAGENT_BACKEND_ADDRESS", "from-env:8500")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("consul", "c", "", "")
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(WithFileSystem(&mockFS{}), WithFlags(fs))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.Address != "from-env:8500" {
		t.Errorf("got %q", cfg.Backend.Address)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		opts []LoaderOption
		msg  string
	}{
		{"missing config file", []LoaderOption{WithConfigFile(filepath.Join(dir, "nope.yml"))}, "not found"},
		{"missing env file", []LoaderOption{WithFileSystem(&mockFS{}), WithEnvFile("/nonexistent/.env")}, "not found"},
		{"malformed yaml", []LoaderOption{WithConfigFile(writeFile(t, dir, "bad.yml", "backend: [unterminated"))}, "failed to load config file"},
		{"bad duration", []LoaderOption{WithConfigFile(writeFile(t, dir, "dur.yml", "registration:\n  check_interval: soon\n"))}, "CheckInterval"},
		{"bad log level", []LoaderOption{WithConfigFile(writeFile(t, dir, "log.yml", "logging:\n  level: loud\n"))}, "logging.level"},
		{"bad metadata source", []LoaderOption{WithConfigFile(writeFile(t, dir, "src.yml", "probe:\n  metadata_source: dmi\n"))}, "MetadataSource"},
		{"bad scheme", []LoaderOption{WithConfigFile(writeFile(t, dir, "scheme.yml", "backend:\n  scheme: ftp\n"))}, "config.backend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.opts...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Errorf("expected error containing %q, got %q", tc.msg, err.Error())
			}
		})
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./config/consulagent.yml":         true,
		"/etc/consulagent/consulagent.yml": true,
		"./.env":                           true,
	}}
	resolver := &Resolver{FileSystem: fs}

	files := resolver.ResolveFiles(LoaderConfig{})
	if files.ConfigFile != "./config/consulagent.yml" {
		t.Errorf("expected ./config/consulagent.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./.env" {
		t.Errorf("expected ./.env, got %q", files.EnvFile)
	}

	files = resolver.ResolveFiles(LoaderConfig{ConfigFile: "/custom.yml"})
	if files.ConfigFile != "/custom.yml" {
		t.Errorf("explicit path not kept: %q", files.ConfigFile)
	}
}

func TestBalanceDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.Address = "consul:8500"
	cfg.Registration.FactorMapPath = "x/y.json"
	cfg.Registration.CheckInterval = "5s"

	d := cfg.BalanceDefaults()
	if d.BackendAddress != "consul:8500" || d.WeightTablePath != "x/y.json" || d.CheckInterval != "5s" {
		t.Errorf("unexpected defaults %+v", d)
	}
	if d.Factor != 100 || d.UnknownKey != "unknown" || len(d.Table) != 4 {
		t.Errorf("built-in table lost: %+v", d)
	}
}
