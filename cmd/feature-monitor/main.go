// Package main provides the feature-monitor CLI. Each pipeline step is a
// subcommand; run-all executes them in order and records the run in the
// history database.
//
// Usage:
//
//	feature-monitor <command> [flags]
//
// Exit codes: 0 success, 1 the command failed, 2 invalid usage.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"feature-monitor/internal/config"
	"feature-monitor/internal/coverage"
	"feature-monitor/internal/logging"
	"feature-monitor/internal/meta"
	"feature-monitor/internal/pipeline"
	"feature-monitor/internal/server"
	"feature-monitor/internal/sortutil"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

var commands = []struct{ name, help string }{
	{"run-all", "run every step: ingest, content-checks, index, embed, evaluate, report, dashboard, notify"},
	{pipeline.StepIngest, "fetch all sources and merge into features.json"},
	{"graphql-diff", "snapshot the GraphQL schema and diff it against the previous snapshot"},
	{pipeline.StepContentChecks, "fingerprint configured pages and report drift"},
	{pipeline.StepIndex, "group features by product area"},
	{pipeline.StepEmbed, "attach embeddings to every feature"},
	{pipeline.StepEvaluate, "compute coverage and grade it against thresholds"},
	{pipeline.StepReport, "write report.json and report.md"},
	{pipeline.StepDashboard, "write the dashboard payload and prune old ones"},
	{"dashboard-delta", "summarise what changed between two dashboard payloads"},
	{pipeline.StepNotify, "post the report summary to Slack and Teams"},
	{"monthly-report", "write the report for one calendar month"},
	{"serve", "serve the static dashboard site"},
	{"version", "print build information"},
}

// cliConfig is the parsed command line.
type cliConfig struct {
	command    string
	configPath string
	envFile    string

	month time.Time
	delta pipeline.DeltaPaths

	root string
	host string
	port int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: feature-monitor <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", c.name, c.help)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'feature-monitor <command> -h' for the flags of a command.")
}

func knownCommand(name string) bool {
	for _, c := range commands {
		if c.name == name {
			return true
		}
	}
	return false
}

// parseFlags parses args (without the program name).
func parseFlags(args []string, stderr io.Writer) (cliConfig, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return cliConfig{}, fmt.Errorf("%w: missing command", errUsage)
	}
	cfg := cliConfig{command: args[0]}
	if !knownCommand(cfg.command) {
		return cliConfig{}, fmt.Errorf("%w: unknown command %q", errUsage, cfg.command)
	}

	fs := flag.NewFlagSet(cfg.command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.configPath, "config", config.Path(), "path to config.yaml (env "+config.EnvConfigPath+")")
	fs.StringVar(&cfg.envFile, "env-file", ".env", "dotenv file loaded before reading the config; missing is fine")

	var month string
	switch cfg.command {
	case "monthly-report":
		fs.StringVar(&month, "month", "", "month to report as YYYY-MM (default: current month)")
	case "dashboard-delta":
		fs.StringVar(&cfg.delta.Old, "old", "docs/reports/dashboard.json", "previous published dashboard payload")
		fs.StringVar(&cfg.delta.New, "new", "", "newly generated payload (default: <dashboard dir>/dashboard_latest.json)")
		fs.StringVar(&cfg.delta.OutJSON, "out-json", "", "delta JSON output (default: <dashboard dir>/dashboard_delta.json)")
		fs.StringVar(&cfg.delta.OutMD, "out-md", "", "delta Markdown output (default: <dashboard dir>/dashboard_delta.md)")
		fs.IntVar(&cfg.delta.Top, "top", 0, "max items per sample (default: dashboard.delta_top)")
	case "serve":
		fs.StringVar(&cfg.root, "root", "", "static root (default: server.root)")
		fs.StringVar(&cfg.host, "host", "", "listen host (default: server.host)")
		fs.IntVar(&cfg.port, "port", 0, "listen port (default: server.port)")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return cliConfig{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return cliConfig{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if month != "" {
		m, err := time.Parse("2006-01", month)
		if err != nil {
			return cliConfig{}, fmt.Errorf("%w: -month must be YYYY-MM: %w", errUsage, err)
		}
		cfg.month = m
	}
	if cfg.port < 0 || cfg.port > 65535 {
		return cliConfig{}, fmt.Errorf("%w: -port out of range", errUsage)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "ERROR:", err)
		}
		usage(stderr)
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if cli.command == "version" {
		fmt.Fprintln(stdout, meta.Detect())
		return exitOK
	}

	if err := config.LoadEnv(cli.envFile); err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitFail
	}
	log := logging.FromEnv(stderr)
	cfg, err := config.LoadFile(cli.configPath)
	if err != nil {
		log.Error("config", "err", err)
		return exitFail
	}

	if err := execute(ctx, cli, cfg, stdout, log); err != nil {
		log.Error("command failed", "command", cli.command, "err", err)
		return exitFail
	}
	return exitOK
}

func execute(ctx context.Context, cli cliConfig, cfg *config.Config, stdout io.Writer, log *slog.Logger) error {
	if cli.command == "serve" {
		return serve(ctx, cli, cfg, log)
	}

	app := pipeline.NewApp(cfg, log)
	if err := app.OpenHistory(); err != nil {
		return err
	}
	defer app.Close()

	switch cli.command {
	case "run-all":
		runID, err := app.RunAll(ctx)
		fmt.Fprintf(stdout, "run %s\n", runID)
		return err
	case pipeline.StepIngest:
		sum, err := app.Ingest(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Ingested %d features\n", len(sum.Features))
		for _, src := range sortutil.Keys(sum.BySource) {
			fmt.Fprintf(stdout, "  %s: %d\n", src, sum.BySource[src])
		}
		for _, w := range sum.Warnings {
			fmt.Fprintf(stdout, "  warning: %s\n", w)
		}
	case "graphql-diff":
		res, err := app.GraphQLDiff(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "GraphQL changes: %d\n", len(res.Features))
		for _, f := range res.Features {
			fmt.Fprintf(stdout, "  - %s\n", f.Title)
		}
	case pipeline.StepContentChecks:
		results, err := app.ContentChecks(ctx)
		if err != nil {
			return err
		}
		for _, r := range results {
			state := "ok"
			switch {
			case r.Error != nil:
				state = *r.Error
			case r.Changed != nil && *r.Changed:
				state = "changed"
			}
			fmt.Fprintf(stdout, "%-24s %s\n", r.Key, state)
		}
	case pipeline.StepIndex:
		idx, err := app.Index(ctx)
		if err != nil {
			return err
		}
		for _, a := range idx.Areas() {
			fmt.Fprintf(stdout, "%-24s %d\n", a, len(idx[a]))
		}
	case pipeline.StepEmbed:
		n, err := app.Embed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Embedded %d features\n", n)
	case pipeline.StepEvaluate:
		r, err := app.Evaluate(ctx)
		if r.Timestamp != "" {
			printCoverage(stdout, r)
		}
		return err
	case pipeline.StepReport:
		paths, err := app.Report(ctx)
		if err != nil {
			return err
		}
		printPaths(stdout, paths)
	case pipeline.StepDashboard:
		path, err := app.Dashboard(ctx)
		if err != nil {
			return err
		}
		printPaths(stdout, []string{path})
	case "dashboard-delta":
		d, err := app.DashboardDelta(ctx, cli.delta)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "added %d, removed %d, changed %d\n", d.Counts.FeaturesAdded, d.Counts.FeaturesRemoved, d.Counts.FeaturesChanged)
	case pipeline.StepNotify:
		results, err := app.Notify(ctx)
		for _, r := range results {
			mark := "✓"
			if r.Err != nil {
				mark = "✗"
			}
			fmt.Fprintf(stdout, "  %s %s\n", mark, r.Channel)
		}
		return err
	case "monthly-report":
		month := cli.month
		if month.IsZero() {
			month = time.Now()
		}
		paths, err := app.MonthlyReport(ctx, month)
		if err != nil {
			return err
		}
		printPaths(stdout, paths)
	default:
		return fmt.Errorf("%w: unhandled command %q", errUsage, cli.command)
	}
	return nil
}

func serve(ctx context.Context, cli cliConfig, cfg *config.Config, log *slog.Logger) error {
	sc := cfg.Server
	if cli.root != "" {
		sc.Root = cli.root
	}
	if cli.host != "" {
		sc.Host = cli.host
	}
	if cli.port != 0 {
		sc.Port = cli.port
	}
	srv, err := server.New(sc, log)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

func printCoverage(w io.Writer, r coverage.Report) {
	m := r.Metrics
	fmt.Fprintf(w, "Coverage Evaluation: %s\n", strings.ToUpper(r.Evaluation.Status))
	fmt.Fprintf(w, "Total features: %d\n", m.TotalFeatures)
	fmt.Fprintf(w, "Product areas: %d\n", len(m.ByProductArea))
	fmt.Fprintf(w, "Embeddings coverage: %.1f%%\n", m.EmbeddingsCoverage.Percentage*100)
	for _, issue := range r.Evaluation.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

func printPaths(w io.Writer, paths []string) {
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
}
