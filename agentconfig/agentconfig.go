package agentconfig

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kbukum/consulagent/errors"
	"github.com/kbukum/consulagent/probe"
	"github.com/kbukum/consulagent/util"
)

// Defaults for Settings.
const (
	DefaultDataDir       = "/usr/local/consul/data"
	DefaultLogLevel      = "INFO"
	DefaultClientAddr    = "127.0.0.1"
	DefaultRetryInterval = "3s"
	DefaultRaftProtocol  = 3
)

// Settings are the configurable values of the generated agent config.
type Settings struct {
	DataDir       string `mapstructure:"data_dir"`
	LogLevel      string `mapstructure:"log_level"`
	ClientAddr    string `mapstructure:"client_addr" validate:"omitempty,ip"`
	RetryInterval string `mapstructure:"retry_interval" validate:"omitempty,duration"`
	RaftProtocol  int    `mapstructure:"raft_protocol" validate:"omitempty,min=1,max=3"`
}

// ApplyDefaults fills empty fields.
func (s *Settings) ApplyDefaults() {
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.ClientAddr == "" {
		s.ClientAddr = DefaultClientAddr
	}
	if s.RetryInterval == "" {
		s.RetryInterval = DefaultRetryInterval
	}
	if s.RaftProtocol == 0 {
		s.RaftProtocol = DefaultRaftProtocol
	}
}

// AgentConfig is the client agent configuration. Fields are declared in key
// order so the encoded object is sorted.
type AgentConfig struct {
	BindAddr         string   `json:"bind_addr"`
	BootstrapExpect  int      `json:"bootstrap_expect"`
	ClientAddr       string   `json:"client_addr"`
	DataDir          string   `json:"data_dir"`
	Datacenter       string   `json:"datacenter"`
	EnableDebug      bool     `json:"enable_debug"`
	EnableSyslog     bool     `json:"enable_syslog"`
	LogLevel         string   `json:"log_level"`
	NodeName         string   `json:"node_name"`
	RaftProtocol     int      `json:"raft_protocol"`
	RejoinAfterLeave bool     `json:"rejoin_after_leave"`
	RetryInterval    string   `json:"retry_interval"`
	RetryJoin        []string `json:"retry_join,omitempty"`
	Server           bool     `json:"server"`
	UI               bool     `json:"ui"`
}

// Generator builds agent configs from probed host facts.
type Generator struct {
	prober   probe.Prober
	settings Settings
}

// NewGenerator creates a Generator.
func NewGenerator(prober probe.Prober, settings Settings) *Generator {
	settings.ApplyDefaults()
	return &Generator{prober: prober, settings: settings}
}

// Build returns the agent config for datacenter. It fails when datacenter
// is empty or the bind address cannot be probed.
func (g *Generator) Build(ctx context.Context, datacenter string, retryJoin []string) (AgentConfig, error) {
	if strings.TrimSpace(datacenter) == "" {
		return AgentConfig{}, errors.InvalidInput("datacenter", "datacenter is required")
	}
	addr, err := g.prober.PrimaryOutboundAddress(ctx)
	if err != nil {
		return AgentConfig{}, err
	}

	var join []string
	if set := util.SortedSet(retryJoin); len(set) > 0 {
		join = set
	}
	return AgentConfig{
		BindAddr:         addr,
		BootstrapExpect:  0,
		ClientAddr:       g.settings.ClientAddr,
		DataDir:          g.settings.DataDir,
		Datacenter:       datacenter,
		EnableDebug:      false,
		EnableSyslog:     false,
		LogLevel:         g.settings.LogLevel,
		NodeName:         g.prober.Hostname(ctx),
		RaftProtocol:     g.settings.RaftProtocol,
		RejoinAfterLeave: true,
		RetryInterval:    g.settings.RetryInterval,
		RetryJoin:        join,
		Server:           false,
		UI:               true,
	}, nil
}

// Render encodes the config with four-space indentation and a trailing newline.
func Render(cfg AgentConfig) ([]byte, error) {
	out, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Generate builds and renders the config in one step.
func (g *Generator) Generate(ctx context.Context, datacenter string, retryJoin []string) ([]byte, error) {
	cfg, err := g.Build(ctx, datacenter, retryJoin)
	if err != nil {
		return nil, err
	}
	return Render(cfg)
}
