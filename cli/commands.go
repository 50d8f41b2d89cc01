package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kbukum/consulagent/agentconfig"
	"github.com/kbukum/consulagent/balancer"
	"github.com/kbukum/consulagent/errors"
	"github.com/kbukum/consulagent/logger"
	"github.com/kbukum/consulagent/registration"
	"github.com/kbukum/consulagent/util"
	"github.com/kbukum/consulagent/version"
)

// Command flag names.
const (
	flagInterval   = "interval"
	flagTimeout    = "timeout"
	flagDeregister = "deregister"
	flagZone       = "zone"
	flagFactor     = "factor"
	flagFactorMap  = "factor-map"
	flagTag        = "tag"
	flagSrc        = "src"
	flagDst        = "dst"
	flagRetryJoin  = "retry-join"
	flagCount      = "count"
)

type command struct {
	name    string
	usage   string
	summary string
	minArgs int
	maxArgs int
	// standalone commands run without loading configuration.
	standalone bool
	flags      func(fs *pflag.FlagSet)
	run        func(ctx context.Context, e *env, args []string) error
}

func (c *command) argsHelp() string {
	return strings.TrimSpace(strings.TrimPrefix(c.usage, c.name))
}

var commands = []*command{
	{
		name:    "register",
		usage:   "register <service> <port> [-i interval] [-t timeout] [-r deregister-after] [-z zone] [-f balance-factor] [-m factor-map] [--tag tag ...]",
		summary: "register this host's service instance with the local agent",
		minArgs: 2,
		maxArgs: 2,
		flags: func(fs *pflag.FlagSet) {
			fs.StringP(flagInterval, "i", "", "health check interval (default 10s)")
			fs.StringP(flagTimeout, "t", "", "health check timeout (default 1s)")
			fs.StringP(flagDeregister, "r", "", "deregister critical service after (default 90m)")
			fs.StringP(flagZone, "z", "", "zone, skips the zone probe when given")
			fs.IntP(flagFactor, "f", 0, "balance factor, skips the weight table when given")
			fs.StringP(flagFactorMap, "m", "", "weight table KV path (default consul/factor_map.json)")
			fs.StringArray(flagTag, nil, "service tag, repeatable")
		},
		run: runRegister,
	},
	{
		name:    "deregister",
		usage:   "deregister <serviceID>",
		summary: "remove a service instance from the local agent",
		minArgs: 1,
		maxArgs: 1,
		run: runDeregister,
	},
	{
		name:    "services",
		usage:   "services [name]",
		summary: "list catalog services, or the passing instances of one service",
		minArgs: 0,
		maxArgs: 1,
		run: runServices,
	},
	{
		name:    "kvget",
		usage:   "kvget [path] [-d path]",
		summary: "print the value stored at a KV path",
		minArgs: 0,
		maxArgs: 1,
		flags: func(fs *pflag.FlagSet) {
			fs.StringP(flagDst, "d", "", "KV path, used when no path argument is given")
		},
		run: runKVGet,
	},
	{
		name:    "kvput",
		usage:   "kvput --src <file> --dst <path>",
		summary: "store a file at a KV path",
		minArgs: 0,
		maxArgs: 0,
		flags: func(fs *pflag.FlagSet) {
			fs.StringP(flagSrc, "s", "", "file to upload")
			fs.StringP(flagDst, "d", "", "KV path to store it at")
		},
		run: runKVPut,
	},
	{
		name:    "config",
		usage:   "config <datacenter> [--retry-join addr ...]",
		summary: "print a client agent config for this host",
		minArgs: 1,
		maxArgs: 1,
		flags: func(fs *pflag.FlagSet) {
			fs.StringArray(flagRetryJoin, nil, "retry_join entry, repeatable")
		},
		run: runConfig,
	},
	{
		name:    "pick",
		usage:   "pick <service> [-n count] [-z zone]",
		summary: "pick passing instances by balance factor, preferring the local zone",
		minArgs: 1,
		maxArgs: 1,
		flags: func(fs *pflag.FlagSet) {
			fs.IntP(flagCount, "n", 1, "number of picks")
			fs.StringP(flagZone, "z", "", "local zone, skips the zone probe when given")
		},
		run: runPick,
	},
	{
		name:       "version",
		usage:      "version",
		summary:    "print the build version",
		minArgs:    0,
		maxArgs:    0,
		standalone: true,
		run: func(_ context.Context, e *env, _ []string) error {
			e.printf("%s\n", version.Get())
			return nil
		},
	},
}

func lookup(name string) (*command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

func runRegister(ctx context.Context, e *env, args []string) error {
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.InvalidInput("port", fmt.Sprintf("port %q is not a number", args[1]))
	}
	tags, _ := e.flags.GetStringArray(flagTag)

	opts := registration.Options{
		Tags:            tags,
		CheckInterval:   e.cfg.Registration.CheckInterval,
		CheckTimeout:    e.cfg.Registration.CheckTimeout,
		DeregisterAfter: e.cfg.Registration.DeregisterAfter,
		WeightTablePath: e.cfg.Registration.FactorMapPath,
		BackendAddress:  e.cfg.Backend.Address,
	}
	if e.flags.Changed(flagFactor) {
		factor, _ := e.flags.GetInt(flagFactor)
		opts.BalanceFactorOverride = util.Ptr(factor)
	}
	if e.flags.Changed(flagZone) {
		zone, _ := e.flags.GetString(flagZone)
		opts.ZoneOverride = util.Ptr(zone)
	}

	d, err := e.Builder().Build(ctx, args[0], port, opts)
	if err != nil {
		return err
	}
	client, err := e.Client()
	if err != nil {
		return err
	}

	if err := client.Register(ctx, d); err != nil {
		if err := e.report(err); err != nil {
			return err
		}
	} else {
		e.log.Info("service registered", logger.Fields(
			logger.FieldService, d.Name,
			logger.FieldServiceID, d.ID,
			"balance_factor", d.BalanceFactor(),
			"zone", d.Zone(),
		))
	}

	out, err := d.Pretty()
	if err != nil {
		return err
	}
	e.write(out)
	return nil
}

func runDeregister(ctx context.Context, e *env, args []string) error {
	client, err := e.Client()
	if err != nil {
		return err
	}
	id := args[0]
	if err := client.Deregister(ctx, id); err != nil {
		return e.report(err)
	}
	e.printf("%d %s\n", http.StatusOK, http.StatusText(http.StatusOK))
	e.printf("%s\n", client.URL("/v1/agent/service/deregister/"+url.PathEscape(id)))
	return nil
}

func runServices(ctx context.Context, e *env, args []string) error {
	client, err := e.Client()
	if err != nil {
		return err
	}

	var result any
	if len(args) == 0 {
		result, err = client.Services(ctx)
	} else {
		result, err = client.HealthyInstances(ctx, args[0])
	}
	if err != nil {
		return e.report(err)
	}
	return e.printJSON(result)
}

func runKVGet(ctx context.Context, e *env, args []string) error {
	path, _ := e.flags.GetString(flagDst)
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return usagef("kvget: a path argument or --dst is required")
	}

	client, err := e.Client()
	if err != nil {
		return err
	}
	value, err := client.GetKV(ctx, path)
	if err != nil {
		return e.report(err)
	}
	e.write(value)
	return nil
}

func runKVPut(ctx context.Context, e *env, _ []string) error {
	src, _ := e.flags.GetString(flagSrc)
	dst, _ := e.flags.GetString(flagDst)
	if src == "" || dst == "" {
		return usagef("kvput: --src and --dst are required")
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return errors.InvalidInput("src", err.Error())
	}
	client, err := e.Client()
	if err != nil {
		return err
	}
	if err := client.PutKV(ctx, dst, data); err != nil {
		return e.report(err)
	}
	e.log.Info("value stored", logger.Fields(logger.FieldPath, dst, "bytes", len(data)))
	e.write(data)
	return nil
}

func runConfig(ctx context.Context, e *env, args []string) error {
	retryJoin, _ := e.flags.GetStringArray(flagRetryJoin)
	out, err := agentconfig.NewGenerator(e.Prober(), e.cfg.Agent).Generate(ctx, args[0], retryJoin)
	if err != nil {
		return err
	}
	e.write(out)
	return nil
}

func runPick(ctx context.Context, e *env, args []string) error {
	count, _ := e.flags.GetInt(flagCount)
	if count < 1 {
		return errors.InvalidInput("count", "count must be at least 1")
	}

	client, err := e.Client()
	if err != nil {
		return err
	}
	entries, err := client.HealthyInstances(ctx, args[0])
	if err != nil {
		return e.report(err)
	}

	var zone string
	if e.flags.Changed(flagZone) {
		zone, _ = e.flags.GetString(flagZone)
	} else {
		zone = e.Prober().AvailabilityZone(ctx)
	}

	picker := balancer.NewZonePicker(zone, balancer.NodesFromEntries(entries))
	e.log.Debug("picker ready", logger.Fields(
		logger.FieldService, args[0],
		"zone", picker.LocalZone(),
		"local_factor", picker.LocalFactor(),
		"other_factor", picker.OtherFactor(),
	))

	for i := 0; i < count; i++ {
		node, ok := picker.Pick()
		if !ok {
			e.log.Warn("no instance with a positive balance factor", logger.Fields(
				logger.FieldService, args[0],
				"instances", len(entries),
			))
			return nil
		}
		e.printf("%s\n", node.Address)
	}
	return nil
}

func (e *env) printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	e.write(out)
	return nil
}
