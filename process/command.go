package process

import (
	"io"
	"strings"
	"time"
)

// Command configures a subprocess to execute.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	// Args are the command-line arguments.
	Args []string
	// Env is additional environment variables (key=value). Merged with os.Environ.
	Env []string
	// Stdin provides input to the process. May be nil.
	Stdin io.Reader
	// Timeout bounds the whole run. Zero means the caller's context alone applies.
	Timeout time.Duration
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Defaults to 2 seconds if zero.
	GracePeriod time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Parse splits a configured command line such as "/opt/aws/bin/ec2-metadata -t"
// into a Command. Quoting is not supported.
func Parse(line string) Command {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}
	}
	return Command{Binary: parts[0], Args: parts[1:]}
}
