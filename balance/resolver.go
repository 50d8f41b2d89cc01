package balance

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/consulagent/errors"
	"github.com/kbukum/consulagent/logger"
	"github.com/kbukum/consulagent/observability"
)

// KVReader reads a single KV key. consul.Client satisfies it.
type KVReader interface {
	GetKV(ctx context.Context, path string) ([]byte, error)
}

// KVDialer returns a KVReader for a backend address.
type KVDialer func(address string) (KVReader, error)

// Fallback reasons recorded on the fallbacks counter.
const (
	reasonDial      = "dial"
	reasonNotFound  = "not_found"
	reasonRejected  = "rejected"
	reasonTransport = "unavailable"
	reasonEmpty     = "empty"
	reasonMalformed = "malformed"
)

// Resolver fetches weight tables from the backend.
type Resolver struct {
	defaults Defaults
	dial     KVDialer
	log      *logger.Logger
	metrics  *observability.Metrics
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger fallbacks are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithMetrics sets the instruments fallbacks are counted on.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver. Zero fields of defaults take built-in values.
func NewResolver(defaults Defaults, dial KVDialer, opts ...Option) *Resolver {
	r := &Resolver{
		defaults: defaults.withBuiltins(),
		dial:     dial,
		log:      logger.GetGlobalLogger(),
		metrics:  observability.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("balance")
	return r
}

// Defaults returns the effective defaults.
func (r *Resolver) Defaults() Defaults {
	return r.defaults
}

// FetchWeightTable reads the weight table at path from the backend at
// backendAddress with a single GET. Empty arguments take the defaults. Any
// failure is logged and counted, and a copy of the default table is returned.
// A remote table without the unknown key gets it set to the default factor.
func (r *Resolver) FetchWeightTable(ctx context.Context, path, backendAddress string) WeightTable {
	if path == "" {
		path = r.defaults.WeightTablePath
	}
	if backendAddress == "" {
		backendAddress = r.defaults.BackendAddress
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanFetchWeightTable)
	defer span.End()
	span.SetAttributes(
		attribute.String("consulagent.kv.path", path),
		attribute.String("consulagent.backend", backendAddress),
	)

	table, reason, err := r.fetch(ctx, path, backendAddress)
	if err != nil {
		span.SetAttributes(
			attribute.String("consulagent.weight_table.source", "default"),
			attribute.String("consulagent.weight_table.fallback_reason", reason),
		)
		span.RecordError(err)
		r.metrics.RecordWeightTableFallback(ctx, reason)
		r.log.Warn("using default weight table", logger.MergeWithError(logger.Fields(
			logger.FieldPath, path,
			logger.FieldBackend, backendAddress,
			"reason", reason,
		), err))
		return r.defaults.Table.Clone()
	}

	span.SetAttributes(attribute.String("consulagent.weight_table.source", "remote"))
	if _, ok := table[r.defaults.UnknownKey]; !ok {
		table[r.defaults.UnknownKey] = r.defaults.Factor
	}
	r.log.Debug("weight table loaded", logger.Fields(
		logger.FieldPath, path,
		"classes", len(table),
	))
	return table
}

func (r *Resolver) fetch(ctx context.Context, path, backendAddress string) (WeightTable, string, error) {
	if r.dial == nil {
		return nil, reasonDial, fmt.Errorf("no KV dialer configured")
	}
	kv, err := r.dial(backendAddress)
	if err != nil {
		return nil, reasonDial, err
	}

	raw, err := kv.GetKV(ctx, path)
	if err != nil {
		return nil, classify(err), err
	}
	if len(raw) == 0 {
		return nil, reasonEmpty, fmt.Errorf("weight table %q is empty", path)
	}

	var table WeightTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, reasonMalformed, fmt.Errorf("decoding weight table %q: %w", path, err)
	}
	if len(table) == 0 {
		return nil, reasonEmpty, fmt.Errorf("weight table %q has no entries", path)
	}
	return table, "", nil
}

func classify(err error) string {
	switch {
	case errors.IsCode(err, errors.ErrCodeNotFound):
		return reasonNotFound
	case errors.IsCode(err, errors.ErrCodeBackendRejected):
		return reasonRejected
	default:
		return reasonTransport
	}
}
