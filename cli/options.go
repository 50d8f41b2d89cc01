package cli

import (
	"github.com/kbukum/consulagent/config"
	"github.com/kbukum/consulagent/consul"
	"github.com/kbukum/consulagent/probe"
)

// Option configures the Dispatcher during creation.
type Option func(*dispatcherOptions)

type dispatcherOptions struct {
	prober        probe.Prober
	fileSystem    config.FileSystem
	clientOptions []consul.Option
	telemetry     bool
}

func resolveOptions(opts []Option) *dispatcherOptions {
	o := &dispatcherOptions{telemetry: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithProber replaces the host prober built from configuration.
func WithProber(p probe.Prober) Option {
	return func(o *dispatcherOptions) {
		o.prober = p
	}
}

// WithFileSystem sets the filesystem used to find config and .env files.
func WithFileSystem(fs config.FileSystem) Option {
	return func(o *dispatcherOptions) {
		o.fileSystem = fs
	}
}

// WithClientOptions adds options to every Consul client the dispatcher creates.
func WithClientOptions(opts ...consul.Option) Option {
	return func(o *dispatcherOptions) {
		o.clientOptions = append(o.clientOptions, opts...)
	}
}

// WithoutTelemetry skips OpenTelemetry setup even when an endpoint is configured.
func WithoutTelemetry() Option {
	return func(o *dispatcherOptions) {
		o.telemetry = false
	}
}
