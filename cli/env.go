package cli

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/kbukum/consulagent/balance"
	"github.com/kbukum/consulagent/config"
	"github.com/kbukum/consulagent/consul"
	"github.com/kbukum/consulagent/errors"
	"github.com/kbukum/consulagent/logger"
	"github.com/kbukum/consulagent/probe"
	"github.com/kbukum/consulagent/registration"
)

// env is what a command runs against. Collaborators are built on first use
// so commands that never talk to Consul never create a client.
type env struct {
	cfg    *config.Config
	opts   *dispatcherOptions
	stdout io.Writer
	log    *logger.Logger
	flags  *pflag.FlagSet

	prober probe.Prober
	client *consul.Client
}

func newEnv(cfg *config.Config, opts *dispatcherOptions, stdout io.Writer, log *logger.Logger, fs *pflag.FlagSet) *env {
	return &env{cfg: cfg, opts: opts, stdout: stdout, log: log, flags: fs}
}

func (e *env) clientOptions() []consul.Option {
	return append([]consul.Option{consul.WithLogger(e.log)}, e.opts.clientOptions...)
}

// Prober returns the configured prober.
func (e *env) Prober() probe.Prober {
	if e.prober == nil {
		if e.opts.prober != nil {
			e.prober = e.opts.prober
		} else {
			e.prober = probe.NewHostProber(e.cfg.Probe, probe.WithLogger(e.log))
		}
	}
	return e.prober
}

// Client returns the client for the configured backend.
func (e *env) Client() (*consul.Client, error) {
	if e.client == nil {
		c, err := consul.NewClient(e.cfg.Backend, e.clientOptions()...)
		if err != nil {
			return nil, err
		}
		e.client = c
	}
	return e.client, nil
}

// Builder returns a registration builder resolving weight tables through
// Consul KV.
func (e *env) Builder() *registration.Builder {
	defaults := e.cfg.BalanceDefaults()
	resolver := balance.NewResolver(defaults,
		consul.Dialer(e.cfg.Backend.Timeout, e.clientOptions()...),
		balance.WithLogger(e.log),
	)
	return registration.NewBuilder(e.Prober(), resolver, defaults,
		registration.WithCheckName(e.cfg.Registration.CheckName),
		registration.WithLogger(e.log),
	)
}

// printf writes operator output.
func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.stdout, format, args...)
}

// write writes a value and terminates it with a newline.
func (e *env) write(b []byte) {
	e.stdout.Write(b)
	if len(b) == 0 || b[len(b)-1] != '\n' {
		io.WriteString(e.stdout, "\n")
	}
}

// report prints a backend failure as "<status> <reason>" and the request URL
// and returns nil, so the command completes. Other errors are returned.
func (e *env) report(err error) error {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return err
	}
	switch appErr.Code {
	case errors.ErrCodeBackendRejected, errors.ErrCodeNotFound:
		e.printf("%d %s\n", appErr.HTTPStatus, appErr.Reason())
		if body, ok := appErr.Details["body"].(string); ok && body != "" {
			e.log.Warn("backend rejected request", logger.Fields(logger.FieldStatus, appErr.HTTPStatus, "body", body))
		}
	case errors.ErrCodeBackendUnavailable:
		e.printf("%s\n", appErr.Message)
		e.log.Warn("backend unavailable", logger.ErrorFields(fmt.Sprint(appErr.Details["operation"]), appErr))
	default:
		return err
	}
	if u := appErr.URL(); u != "" {
		e.printf("%s\n", u)
	}
	return nil
}
