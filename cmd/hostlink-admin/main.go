// hostlink-admin runs maintenance operations against the configured stores
// without going through the HTTP API.
//
//	hostlink-admin stats
//	hostlink-admin sweep --mode cleanup_empty_hosts [--policy preserve.yaml] [--preserve a@x.io]
//	hostlink-admin details --id <subject>
//	hostlink-admin delete --id <subject>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/maintenance"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/utilities"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printHelp()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	mode     string
	id       string
	policy   string
	preserve []string
	output   string
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return errUsage
	}
	cmd := args[0]

	var opts options
	fs := pflag.NewFlagSet("hostlink-admin "+cmd, pflag.ContinueOnError)
	fs.StringVarP(&opts.output, "output", "o", "yaml", "output format: yaml or json")
	switch cmd {
	case "stats":
	case "sweep":
		fs.StringVar(&opts.mode, "mode", "", "one of "+strings.Join(modeNames(), ", "))
		fs.StringVar(&opts.policy, "policy", "", "YAML preserve policy file")
		fs.StringSliceVar(&opts.preserve, "preserve", nil, "extra preserved email (repeatable)")
	case "details", "delete":
		fs.StringVar(&opts.id, "id", "", "account subject id")
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.output != "yaml" && opts.output != "json" {
		return fmt.Errorf("unsupported output %q", opts.output)
	}
	if (cmd == "details" || cmd == "delete") && opts.id == "" {
		return fmt.Errorf("%s requires --id", cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Log.Level = "warn"
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := execute(ctx, a.Maintenance, cmd, opts, sugar)
	if err != nil {
		return err
	}
	return render(out, opts.output, v)
}

func execute(ctx context.Context, svc *maintenance.Service, cmd string, opts options, logger *zap.SugaredLogger) (any, error) {
	switch cmd {
	case "stats":
		return svc.Stats(ctx)
	case "details":
		return svc.AccountDetails(ctx, opts.id)
	case "delete":
		return svc.DeleteAccount(ctx, opts.id)
	}

	mode, err := maintenance.ParseMode(opts.mode)
	if err != nil {
		return nil, err
	}
	policy := svc.Policy()
	if opts.policy != "" {
		if policy, err = maintenance.LoadPreservePolicy(opts.policy); err != nil {
			return nil, err
		}
	}
	policy = policy.WithEmails(opts.preserve...)
	logger.Infow("sweep", "mode", mode, "preserved_emails", len(policy.Emails))
	res, err := svc.SweepWithPolicy(ctx, mode, policy)
	if err != nil {
		// partial results are still worth printing
		_ = render(os.Stderr, opts.output, res)
		return nil, err
	}
	return res, nil
}

func render(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func modeNames() []string {
	out := make([]string, 0, len(maintenance.Modes))
	for _, m := range maintenance.Modes {
		out = append(out, string(m))
	}
	return out
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `hostlink-admin: maintenance for hostlink account stores.

Usage:
  hostlink-admin stats   [-o yaml|json]
  hostlink-admin sweep   --mode MODE [--policy FILE] [--preserve EMAIL]... [-o yaml|json]
  hostlink-admin details --id SUBJECT [-o yaml|json]
  hostlink-admin delete  --id SUBJECT [-o yaml|json]

Modes: %s

Configuration is read from the environment (and .env), as for the API server.
`, strings.Join(modeNames(), ", "))
}
