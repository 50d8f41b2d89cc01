package consul

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/consulagent/balance"
	"github.com/kbukum/consulagent/errors"
	"github.com/kbukum/consulagent/logger"
	"github.com/kbukum/consulagent/observability"
	"github.com/kbukum/consulagent/registration"
)

// Operation names used for spans, metrics and error details.
const (
	OpKVGet            = "kv_get"
	OpKVPut            = "kv_put"
	OpRegister         = "register"
	OpDeregister       = "deregister"
	OpServices         = "services"
	OpHealthyInstances = "healthy_instances"
)

// Client talks to a single Consul agent.
type Client struct {
	api     *api.Client
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the instruments requests are recorded on.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client from the given Config.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.InvalidInput("backend.address", err.Error())
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Scheme = cfg.Scheme
	apiCfg.HttpClient = &http.Client{
		Transport: apiCfg.Transport,
		Timeout:   cfg.Timeout,
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, errors.InvalidInput("backend.address", fmt.Sprintf("consul client: %v", err))
	}

	c := &Client{
		api:     client,
		cfg:     cfg,
		log:     logger.GetGlobalLogger(),
		metrics: observability.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("consul").WithFields(logger.Fields(logger.FieldBackend, cfg.Address))
	return c, nil
}

// Dialer returns a balance.KVDialer that builds a Client per address with
// the given timeout and options.
func Dialer(timeout time.Duration, opts ...Option) balance.KVDialer {
	return func(address string) (balance.KVReader, error) {
		c, err := NewClient(Config{Address: address, Timeout: timeout}, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Address returns the agent address the client talks to.
func (c *Client) Address() string { return c.cfg.Address }

// URL returns the full URL of an API path, e.g. URL("/v1/catalog/services").
func (c *Client) URL(path string) string {
	return c.cfg.BaseURL() + path
}

// GetKV returns the raw value stored at path.
func (c *Client) GetKV(ctx context.Context, path string) ([]byte, error) {
	u := c.URL("/v1/kv/" + escapeKey(path))
	var value []byte
	err := c.do(ctx, OpKVGet, u, func(ctx context.Context) error {
		pair, _, err := c.api.KV().Get(path, (&api.QueryOptions{}).WithContext(ctx))
		if err != nil {
			return err
		}
		if pair == nil {
			return errors.NotFound("key", path).WithDetail("url", u)
		}
		value = pair.Value
		return nil
	})
	return value, err
}

// PutKV stores value at path.
func (c *Client) PutKV(ctx context.Context, path string, value []byte) error {
	u := c.URL("/v1/kv/" + escapeKey(path))
	return c.do(ctx, OpKVPut, u, func(ctx context.Context) error {
		_, err := c.api.KV().Put(&api.KVPair{Key: path, Value: value}, (&api.WriteOptions{}).WithContext(ctx))
		return err
	})
}

// Register registers the descriptor with the local agent.
func (c *Client) Register(ctx context.Context, d registration.ServiceDescriptor) error {
	u := c.URL("/v1/agent/service/register")
	return c.do(ctx, OpRegister, u, func(ctx context.Context) error {
		return c.api.Agent().ServiceRegisterOpts(toAgentRegistration(d), api.ServiceRegisterOpts{}.WithContext(ctx))
	})
}

// Deregister removes a service instance from the local agent.
func (c *Client) Deregister(ctx context.Context, serviceID string) error {
	u := c.URL("/v1/agent/service/deregister/" + url.PathEscape(serviceID))
	return c.do(ctx, OpDeregister, u, func(ctx context.Context) error {
		return c.api.Agent().ServiceDeregisterOpts(serviceID, (&api.QueryOptions{}).WithContext(ctx))
	})
}

// Services lists catalog services and their tags.
func (c *Client) Services(ctx context.Context) (map[string][]string, error) {
	u := c.URL("/v1/catalog/services")
	var services map[string][]string
	err := c.do(ctx, OpServices, u, func(ctx context.Context) error {
		var err error
		services, _, err = c.api.Catalog().Services((&api.QueryOptions{}).WithContext(ctx))
		return err
	})
	return services, err
}

// HealthyInstances returns the instances of name whose checks all pass.
func (c *Client) HealthyInstances(ctx context.Context, name string) ([]*api.ServiceEntry, error) {
	u := c.URL("/v1/health/service/" + url.PathEscape(name) + "?passing=1")
	var entries []*api.ServiceEntry
	err := c.do(ctx, OpHealthyInstances, u, func(ctx context.Context) error {
		var err error
		entries, _, err = c.api.Health().Service(name, "", true, (&api.QueryOptions{}).WithContext(ctx))
		return err
	})
	return entries, err
}

// do runs one backend call inside a span, converts its error and records the
// outcome.
func (c *Client) do(ctx context.Context, op, u string, call func(ctx context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanBackendPrefix+op)
	defer span.End()
	span.SetAttributes(
		attribute.String(observability.AttrOperation, op),
		attribute.String("url.full", u),
	)

	start := time.Now()
	err := c.mapError(op, u, call(ctx))
	outcome := outcomeOf(err)

	span.SetAttributes(attribute.String(observability.AttrOutcome, outcome))
	if appErr, ok := errors.AsAppError(err); ok && appErr.HTTPStatus != 0 {
		span.SetAttributes(attribute.Int(observability.AttrHTTPStatus, appErr.HTTPStatus))
	}
	observability.SetSpanError(span, err)
	c.metrics.RecordBackendRequest(ctx, op, outcome, time.Since(start))

	fields := logger.Fields(logger.FieldOperation, op, "url", u, "outcome", outcome)
	if err != nil {
		c.log.Debug("backend request failed", logger.MergeWithError(fields, err))
	} else {
		c.log.Debug("backend request", fields)
	}
	return err
}

// mapError converts an api error into an AppError carrying the URL.
func (c *Client) mapError(op, u string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	var se api.StatusError
	if stderrors.As(err, &se) {
		return errors.BackendRejected(op, u, se.Code, strings.TrimSpace(se.Body)).WithCause(err)
	}
	return errors.BackendUnavailable(op, u, err)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.IsCode(err, errors.ErrCodeNotFound):
		return observability.OutcomeNotFound
	case errors.IsCode(err, errors.ErrCodeBackendRejected):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeUnavailable
	}
}

// escapeKey escapes each segment of a KV key, keeping the slashes.
func escapeKey(key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func toAgentRegistration(d registration.ServiceDescriptor) *api.AgentServiceRegistration {
	return &api.AgentServiceRegistration{
		ID:                d.ID,
		Name:              d.Name,
		Tags:              d.Tags,
		Address:           d.Address,
		Meta:              d.Meta,
		Port:              d.Port,
		EnableTagOverride: d.EnableTagOverride,
		Check: &api.AgentServiceCheck{
			Name:                           d.Check.Name,
			TCP:                            d.Check.TCP,
			Interval:                       d.Check.Interval,
			Timeout:                        d.Check.Timeout,
			DeregisterCriticalServiceAfter: d.Check.DeregisterCriticalServiceAfter,
		},
	}
}

// Compile-time checks.
var _ balance.KVReader = (*Client)(nil)
