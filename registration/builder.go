package registration

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/consulagent/balance"
	"github.com/kbukum/consulagent/logger"
	"github.com/kbukum/consulagent/observability"
	"github.com/kbukum/consulagent/probe"
	"github.com/kbukum/consulagent/util"
	"github.com/kbukum/consulagent/validation"
)

// Options are the per-call inputs of Build. Empty strings take the builder's
// defaults; nil overrides are resolved from the environment.
type Options struct {
	Tags                  []string
	CheckInterval         string
	CheckTimeout          string
	DeregisterAfter       string
	BalanceFactorOverride *int
	ZoneOverride          *string
	WeightTablePath       string
	BackendAddress        string
}

// WeightTableFetcher fetches the weight table. *balance.Resolver satisfies it.
type WeightTableFetcher interface {
	FetchWeightTable(ctx context.Context, path, backendAddress string) balance.WeightTable
}

// Factor sources recorded on the build span.
const (
	SourceOverride    = "override"
	SourceWeightTable = "weight_table"
)

// Builder composes ServiceDescriptors.
type Builder struct {
	prober    probe.Prober
	fetcher   WeightTableFetcher
	defaults  balance.Defaults
	checkName string
	log       *logger.Logger
}

// Option customizes a Builder.
type Option func(*Builder)

// WithCheckName overrides the health check name.
func WithCheckName(name string) Option {
	return func(b *Builder) {
		if name != "" {
			b.checkName = name
		}
	}
}

// WithLogger sets the builder logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// NewBuilder creates a Builder.
func NewBuilder(prober probe.Prober, fetcher WeightTableFetcher, defaults balance.Defaults, opts ...Option) *Builder {
	if defaults.CheckInterval == "" {
		defaults.CheckInterval = balance.DefaultCheckInterval
	}
	if defaults.CheckTimeout == "" {
		defaults.CheckTimeout = balance.DefaultCheckTimeout
	}
	if defaults.DeregisterAfter == "" {
		defaults.DeregisterAfter = balance.DefaultDeregisterAfter
	}
	b := &Builder{
		prober:    prober,
		fetcher:   fetcher,
		defaults:  defaults,
		checkName: DefaultCheckName,
		log:       logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithComponent("registration")
	return b
}

// Build validates the input, snapshots the host and composes the descriptor.
// It fails only on invalid input, reported before any probe or network call,
// or when the outbound address cannot be determined.
func (b *Builder) Build(ctx context.Context, serviceName string, port int, opts Options) (ServiceDescriptor, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanRegistrationBuild)
	defer span.End()
	span.SetAttributes(
		attribute.String("consulagent.service", serviceName),
		attribute.Int("consulagent.port", port),
	)

	opts = b.withDefaults(opts)
	if err := b.validateInput(serviceName, port, opts); err != nil {
		observability.SetSpanError(span, err)
		return ServiceDescriptor{}, err
	}

	profile, err := probe.Snapshot(ctx, b.prober)
	if err != nil {
		observability.SetSpanError(span, err)
		return ServiceDescriptor{}, err
	}

	factor, source := b.balanceFactor(ctx, profile, opts)
	zone := util.DerefOr(opts.ZoneOverride, profile.Zone)

	d := b.compose(serviceName, port, profile.PrimaryIP, factor, zone, opts)
	if err := d.Validate(); err != nil {
		observability.SetSpanError(span, err)
		return ServiceDescriptor{}, err
	}

	span.SetAttributes(
		attribute.String("consulagent.service_id", d.ID),
		attribute.String("consulagent.factor_source", source),
		attribute.String("consulagent.zone", zone),
	)
	b.log.Debug("descriptor built", logger.Fields(
		logger.FieldServiceID, d.ID,
		"balance_factor", factor,
		"factor_source", source,
		"zone", zone,
	))
	return d, nil
}

// balanceFactor returns the override when present. Otherwise it fetches the
// weight table and resolves the probed instance class against it.
func (b *Builder) balanceFactor(ctx context.Context, profile probe.Profile, opts Options) (int, string) {
	if opts.BalanceFactorOverride != nil {
		return *opts.BalanceFactorOverride, SourceOverride
	}
	table := b.fetcher.FetchWeightTable(ctx, opts.WeightTablePath, opts.BackendAddress)
	return balance.ResolveBalanceFactor(profile.InstanceClass, table, b.defaults), SourceWeightTable
}

func (b *Builder) compose(name string, port int, address string, factor int, zone string, opts Options) ServiceDescriptor {
	return ServiceDescriptor{
		ID:      ServiceID(name, address, port),
		Name:    name,
		Tags:    util.SortedSet(opts.Tags),
		Address: address,
		Meta: map[string]string{
			MetaBalanceFactor: strconv.Itoa(factor),
			MetaZone:          zone,
		},
		Port:              port,
		EnableTagOverride: false,
		Check: HealthCheck{
			Name:                           b.checkName,
			TCP:                            CheckTarget(address, port),
			Interval:                       opts.CheckInterval,
			Timeout:                        opts.CheckTimeout,
			DeregisterCriticalServiceAfter: opts.DeregisterAfter,
		},
	}
}

func (b *Builder) withDefaults(opts Options) Options {
	if opts.CheckInterval == "" {
		opts.CheckInterval = b.defaults.CheckInterval
	}
	if opts.CheckTimeout == "" {
		opts.CheckTimeout = b.defaults.CheckTimeout
	}
	if opts.DeregisterAfter == "" {
		opts.DeregisterAfter = b.defaults.DeregisterAfter
	}
	return opts
}

func (b *Builder) validateInput(name string, port int, opts Options) error {
	v := validation.New().
		Required("service", name).
		Custom(!strings.ContainsAny(name, " \t\n/"), "service", "must not contain whitespace or '/'").
		Port("port", port).
		Duration("interval", opts.CheckInterval).
		Duration("timeout", opts.CheckTimeout).
		Duration("deregister_after", opts.DeregisterAfter)
	for _, tag := range opts.Tags {
		v.Custom(strings.TrimSpace(tag) == tag, "tag", "must not have surrounding whitespace: "+strconv.Quote(tag))
	}
	return v.Error()
}
