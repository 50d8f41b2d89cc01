package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/kbukum/consulagent/config"
	"github.com/kbukum/consulagent/errors"
	"github.com/kbukum/consulagent/logger"
	"github.com/kbukum/consulagent/observability"
	"github.com/kbukum/consulagent/version"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

const shutdownTimeout = 5 * time.Second

// usageError is a malformed command line.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// configError is a configuration that failed to load or validate.
type configError struct {
	err error
}

func (e *configError) Error() string { return "loading configuration: " + e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// Dispatcher routes a command line to its command.
type Dispatcher struct {
	stdout io.Writer
	stderr io.Writer
	opts   *dispatcherOptions
}

// New creates a Dispatcher writing operator output to stdout and
// diagnostics to stderr.
func New(stdout, stderr io.Writer, opts ...Option) *Dispatcher {
	return &Dispatcher{
		stdout: stdout,
		stderr: stderr,
		opts:   resolveOptions(opts),
	}
}

// Run runs one command line with a default Dispatcher.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return New(stdout, stderr).Run(ctx, args)
}

// Run parses args (without the program name), runs the command and returns
// the process exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string) int {
	bootLog := logger.NewWithWriter(&logger.Config{Level: "info", Format: logger.FormatConsole}, config.ServiceName, d.stderr)

	global := newGlobalFlags()
	if err := global.Parse(args); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			d.printUsage(d.stdout)
			return ExitOK
		}
		return d.usageFailure(bootLog, nil, err)
	}
	if global.NArg() == 0 {
		d.printUsage(d.stderr)
		return ExitUsage
	}

	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := lookup(name)
	if !ok {
		return d.usageFailure(bootLog, nil, usagef("unknown command %q", name))
	}

	fs := newCommandFlags(cmd)
	if err := fs.Parse(rest); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			printCommandUsage(d.stdout, cmd, fs)
			return ExitOK
		}
		return d.usageFailure(bootLog, cmd, err)
	}
	if err := mergeGlobalFlags(global, fs); err != nil {
		return d.usageFailure(bootLog, cmd, err)
	}
	positional := fs.Args()
	if len(positional) < cmd.minArgs || len(positional) > cmd.maxArgs {
		return d.usageFailure(bootLog, cmd, usagef("%s: expected %s", cmd.name, cmd.argsHelp()))
	}

	if cmd.standalone {
		return d.exitCode(bootLog, cmd, cmd.run(ctx, &env{stdout: d.stdout, log: bootLog, flags: fs}, positional))
	}

	cfg, err := d.loadConfig(fs)
	if err != nil {
		return d.exitCode(bootLog, cmd, &configError{err: err})
	}
	return d.runWithConfig(ctx, cmd, cfg, fs, positional)
}

// runWithConfig sets up logging and telemetry for one invocation and runs cmd.
func (d *Dispatcher) runWithConfig(ctx context.Context, cmd *command, cfg *config.Config, fs *pflag.FlagSet, args []string) int {
	inv := observability.NewInvocation(cmd.name, uuid.NewString())
	log := d.newLogger(cfg).WithFields(logger.Fields(
		logger.FieldInvocationID, inv.ID,
		logger.FieldOperation, cmd.name,
	))
	logger.SetGlobalLogger(log)

	if d.opts.telemetry {
		shutdown, err := observability.Setup(ctx, cfg.Observability(version.Version))
		if err != nil {
			log.Warn("telemetry disabled", logger.ErrorFields("observability.setup", err))
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					log.Warn("telemetry flush failed", logger.ErrorFields("observability.shutdown", err))
				}
			}()
		}
	}

	ctx, span := inv.Start(ctx)
	e := newEnv(cfg, d.opts, d.stdout, log, fs)
	err := cmd.run(ctx, e, args)
	inv.End(span, err)

	log.Debug("command finished", logger.Fields("duration", inv.Duration().String()))
	return d.exitCode(log, cmd, err)
}

func (d *Dispatcher) loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	opts := []config.LoaderOption{config.WithFlags(fs)}
	if path, _ := fs.GetString(flagConfig); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	if d.opts.fileSystem != nil {
		opts = append(opts, config.WithFileSystem(d.opts.fileSystem))
	}
	return config.Load(opts...)
}

func (d *Dispatcher) newLogger(cfg *config.Config) *logger.Logger {
	w := d.stderr
	if cfg.Logging.Output == "stdout" {
		w = d.stdout
	}
	return logger.NewWithWriter(&cfg.Logging, config.ServiceName, w)
}

// exitCode logs a command failure and maps it to an exit code.
func (d *Dispatcher) exitCode(log *logger.Logger, cmd *command, err error) int {
	if err == nil {
		return ExitOK
	}

	var ue *usageError
	if stderrors.As(err, &ue) {
		return d.usageFailure(log, cmd, err)
	}
	var ce *configError
	if stderrors.As(err, &ce) {
		log.Error(ce.Error(), logger.Fields(logger.FieldOperation, cmd.name))
		return ExitFatal
	}

	fields := logger.ErrorFields(cmd.name, err)
	if appErr, ok := errors.AsAppError(err); ok {
		switch {
		case appErr.Code == errors.ErrCodeInvalidInput:
			log.Error("invalid input", fields)
			return ExitUsage
		case appErr.Fatal():
			log.Error("cannot determine local environment", fields)
			return ExitFatal
		}
	}
	log.Error("command failed", fields)
	return ExitFatal
}

func (d *Dispatcher) usageFailure(log *logger.Logger, cmd *command, err error) int {
	log.Error(err.Error())
	if cmd != nil {
		fmt.Fprintf(d.stderr, "usage: consulagent %s\n", cmd.usage)
	} else {
		d.printUsage(d.stderr)
	}
	return ExitUsage
}
