package probe

import (
	"context"
	"net"
	"os"
	"strings"
	"time"

	"github.com/kbukum/consulagent/errors"
	"github.com/kbukum/consulagent/logger"
	"github.com/kbukum/consulagent/process"
)

// Unknown is returned by best-effort reads that could not determine a value.
const Unknown = "unknown"

// Default probe settings.
const (
	DefaultMetadataCommand  = "/opt/aws/bin/ec2-metadata"
	DefaultMetadataTimeout  = 2 * time.Second
	DefaultRouteProbeTarget = "8.8.8.8:80"
)

// Metadata sources.
const (
	SourceCommand = "command"
	SourceIMDS    = "imds"
)

// Prober reads host facts.
type Prober interface {
	// PrimaryOutboundAddress returns the IP literal this host uses to reach
	// the public internet.
	PrimaryOutboundAddress(ctx context.Context) (string, error)
	InstanceClass(ctx context.Context) string
	AvailabilityZone(ctx context.Context) string
	Hostname(ctx context.Context) string
}

// Config configures a HostProber. MetadataSource selects between running
// MetadataCommand and querying the instance metadata service directly.
type Config struct {
	MetadataSource   string        `mapstructure:"metadata_source" validate:"omitempty,oneof=command imds"`
	MetadataCommand  string        `mapstructure:"metadata_command"`
	MetadataTimeout  time.Duration `mapstructure:"metadata_timeout"`
	IMDSEndpoint     string        `mapstructure:"imds_endpoint"`
	RouteProbeTarget string        `mapstructure:"route_probe_target"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.MetadataSource == "" {
		c.MetadataSource = SourceCommand
	}
	if c.MetadataCommand == "" {
		c.MetadataCommand = DefaultMetadataCommand
	}
	if c.MetadataTimeout <= 0 {
		c.MetadataTimeout = DefaultMetadataTimeout
	}
	if c.RouteProbeTarget == "" {
		c.RouteProbeTarget = DefaultRouteProbeTarget
	}
}

// DialFunc opens a network connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// HostProber is the Prober backed by the real host.
type HostProber struct {
	cfg      Config
	runner   process.Runner
	dial     DialFunc
	hostname func() (string, error)
	imds     IMDSClient
	log      *logger.Logger
}

// Option customizes a HostProber.
type Option func(*HostProber)

// WithRunner replaces the subprocess runner used for metadata commands.
func WithRunner(r process.Runner) Option {
	return func(p *HostProber) { p.runner = r }
}

// WithDialer replaces the dialer used by the address probe.
func WithDialer(d DialFunc) Option {
	return func(p *HostProber) { p.dial = d }
}

// WithHostnameFunc replaces os.Hostname.
func WithHostnameFunc(fn func() (string, error)) Option {
	return func(p *HostProber) { p.hostname = fn }
}

// WithIMDSClient replaces the instance metadata client used by the imds source.
func WithIMDSClient(c IMDSClient) Option {
	return func(p *HostProber) { p.imds = c }
}

// WithLogger sets the logger degradations are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(p *HostProber) { p.log = l }
}

// NewHostProber creates a HostProber.
func NewHostProber(cfg Config, opts ...Option) *HostProber {
	cfg.ApplyDefaults()
	var d net.Dialer
	p := &HostProber{
		cfg:      cfg,
		runner:   process.Exec,
		dial:     d.DialContext,
		hostname: os.Hostname,
		log:      logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.MetadataSource == SourceIMDS && p.imds == nil {
		p.imds = NewIMDSClient(cfg.IMDSEndpoint)
	}
	p.log = p.log.WithComponent("probe")
	return p
}

// PrimaryOutboundAddress dials the route probe target over UDP and reports
// the local address the kernel picked. UDP dialing sends no packets.
func (p *HostProber) PrimaryOutboundAddress(ctx context.Context) (string, error) {
	conn, err := p.dial(ctx, "udp", p.cfg.RouteProbeTarget)
	if err != nil {
		return "", errors.LocalEnvironment("primary outbound address", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return "", errors.LocalEnvironment("primary outbound address",
			errors.New(errors.ErrCodeLocalEnvironment, "no local address on route probe socket"))
	}
	return addr.IP.String(), nil
}

// InstanceClass returns the cloud instance type, e.g. "m4.4xlarge".
func (p *HostProber) InstanceClass(ctx context.Context) string {
	if p.cfg.MetadataSource == SourceIMDS {
		return p.imdsMetadata(ctx, "instance_class", imdsInstanceType)
	}
	return p.metadata(ctx, "instance_class", "-t")
}

// AvailabilityZone returns the cloud placement zone, e.g. "us-east-1a".
func (p *HostProber) AvailabilityZone(ctx context.Context) string {
	if p.cfg.MetadataSource == SourceIMDS {
		return p.imdsMetadata(ctx, "availability_zone", imdsAvailabilityZone)
	}
	return p.metadata(ctx, "availability_zone", "-z")
}

// Hostname returns the OS hostname.
func (p *HostProber) Hostname(_ context.Context) string {
	name, err := p.hostname()
	if err != nil || strings.TrimSpace(name) == "" {
		p.degraded("hostname", err)
		return Unknown
	}
	return name
}

// metadata runs the metadata helper with flag and returns the value of its
// "key: value" output.
func (p *HostProber) metadata(ctx context.Context, probe, flag string) string {
	cmd := process.Parse(p.cfg.MetadataCommand)
	cmd.Args = append(cmd.Args, flag)
	cmd.Timeout = p.cfg.MetadataTimeout

	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		p.degraded(probe, err)
		return Unknown
	}
	value, ok := res.Field(1)
	if !ok {
		p.degraded(probe, errors.New(errors.ErrCodeLocalEnvironment, "unexpected output from "+cmd.String()))
		return Unknown
	}
	return value
}

func (p *HostProber) degraded(probe string, err error) {
	fields := logger.Fields(logger.FieldProbe, probe)
	if err != nil {
		fields = logger.MergeWithError(fields, err)
	}
	p.log.Warn("probe degraded to "+Unknown, fields)
}
