// Command agentengine validates, describes, deploys and queries agent graphs
// declared in a YAML config file, runs them locally and serves a local
// emulator of the remote execution service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}

	if len(args) == 0 {
		c.usage()
		return 2
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "validate":
		err = c.validate(rest)
	case "describe":
		err = c.describe(rest)
	case "deploy":
		err = c.deploy(ctx, rest)
	case "query":
		err = c.query(ctx, rest)
	case "run":
		err = c.runLocal(ctx, rest)
	case "serve":
		err = c.serve(ctx, rest)
	case "help", "-h", "--help":
		c.usage()
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		c.usage()
		return 2
	}

	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func (c *cli) usage() {
	fmt.Fprint(c.stderr, `Usage:
  agentengine <command> [flags]

Commands:
  validate  -config <path>                       Check the config, graph and descriptor
  describe  -config <path>                       Print the deployment descriptor as JSON
  deploy    -config <path>                       Register the graph and print its resource name
  query     -config <path> [-resource <name>] -user <id> -session <id> [-raw] <message>
  run       -config <path> -user <id> -session <id> <message>
  serve     -config <path> [-addr :8080]         Serve a local emulator of the service

Every setting can be overridden with AGENTENGINE_* environment variables,
e.g. AGENTENGINE_LOG_LEVEL=debug.
`)
}

// newFlagSet returns a flag set with the shared -config flag.
func (c *cli) newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	path := fs.String("config", "agentengine.yaml", "path to the YAML config file")
	return fs, path
}
