package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `Usage: gatehouse <command> [flags]

Commands:
  serve         run the HTTP API (default)
  migrate       apply schema migrations and the permission seed, then exit
  issue-token   create an API token for a user

Configuration is read from GATEHOUSE_* environment variables.
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	if err := run(context.Background(), cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName).
		WithField("version", version)

	switch cmd {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return migrate(ctx, cfg, logger)
	case "issue-token":
		return issueToken(ctx, cfg, logger, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type issueTokenOptions struct {
	subject string
	email   string
	name    string
	role    string
}

func parseIssueTokenFlags(args []string) (issueTokenOptions, error) {
	var opts issueTokenOptions
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.StringVar(&opts.subject, "subject", "", "user subject (created if missing)")
	fs.StringVar(&opts.email, "email", "", "user email, used when creating the user")
	fs.StringVar(&opts.name, "name", "cli", "token name")
	fs.StringVar(&opts.role, "role", "", "role name to assign to the user")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.subject == "" {
		return opts, fmt.Errorf("-subject is required")
	}
	return opts, nil
}
