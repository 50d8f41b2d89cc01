package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// Global flag names. consul, log-level and log-format are bound into the
// configuration; config selects the file.
const (
	flagConsul    = "consul"
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringP(flagConsul, "c", "", "consul agent address (default localhost:8500)")
	fs.String(flagConfig, "", "config file")
	fs.String(flagLogLevel, "", "log level: debug, info, warn or error")
	fs.String(flagLogFormat, "", "log format: console or json")
}

func quietFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.SortFlags = false
	return fs
}

// newGlobalFlags parses the flags in front of the command name.
func newGlobalFlags() *pflag.FlagSet {
	fs := quietFlagSet("consulagent")
	fs.SetInterspersed(false)
	addGlobalFlags(fs)
	return fs
}

func newCommandFlags(cmd *command) *pflag.FlagSet {
	fs := quietFlagSet(cmd.name)
	addGlobalFlags(fs)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	return fs
}

// mergeGlobalFlags copies global flags given before the command name into
// the command flag set unless the command line repeats them after it.
func mergeGlobalFlags(global, fs *pflag.FlagSet) error {
	var err error
	global.Visit(func(f *pflag.Flag) {
		if err != nil || fs.Changed(f.Name) {
			return
		}
		err = fs.Set(f.Name, f.Value.String())
	})
	return err
}

func (d *Dispatcher) printUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("usage: consulagent [global flags] <command> [args]\n\ncommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", cmd.name, cmd.summary)
	}
	b.WriteString("\nglobal flags:\n")
	g := quietFlagSet("global")
	addGlobalFlags(g)
	b.WriteString(g.FlagUsages())
	b.WriteString("\nexamples:\n")
	b.WriteString("  consulagent config sg > /etc/consul/consul.json\n")
	b.WriteString("  consulagent kvput --src factor_map.json --dst consul/as/factor_map.json\n")
	b.WriteString("  consulagent kvget consul/as/factor_map.json\n")
	b.WriteString("  consulagent register as 9099 --factor-map consul/as/factor_map.json\n")
	b.WriteString("  consulagent services rs | jq '.[] | {Service}'\n")
	io.WriteString(w, b.String())
}

func printCommandUsage(w io.Writer, cmd *command, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "usage: consulagent %s\n\n%s\n\nflags:\n%s", cmd.usage, cmd.summary, fs.FlagUsages())
}
