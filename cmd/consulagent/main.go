// Command consulagent registers this host's services with the local Consul
// agent and runs related operator commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kbukum/consulagent/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
