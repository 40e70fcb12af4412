// Package config provides CLI configuration and application logic for initargs.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/mazrean/initargs/internal/manifest"
	"github.com/mazrean/initargs/internal/order"
	"github.com/mazrean/initargs/internal/scan"
	"github.com/mazrean/initargs/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI is the root command configuration with subcommands.
type CLI struct {
	LogLevel string           `kong:"short='l',help='Log level',enum='debug,info,warn,error',default='info'"`
	Order    OrderCmd         `kong:"cmd,help='Compute the execution order of initializers'"`
	Check    CheckCmd         `kong:"cmd,help='Report cycles and dangling references'"`
	Graph    GraphCmd         `kong:"cmd,help='Export the dependency graph'"`
	Scan     ScanCmd          `kong:"cmd,help='Discover initializers in Go packages'"`
	Version  kong.VersionFlag `kong:"short='v',help='Show version and exit.'"`
}

// ExitError carries the exit status of a command that ran but did not
// succeed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// Env is what commands write to.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
}

// OrderCmd computes and prints priorities.
type OrderCmd struct {
	Manifests []string `kong:"arg,help='Manifest files (.yaml, .yml, .cue)'"`
	DB        string   `kong:"help='SQLite database holding the previous priorities; updated after the run',type='path'"`
	Format    string   `kong:"short='f',enum='text,json',default='text',help='Output format'"`
}

// Run executes the order command.
func (c *OrderCmd) Run(cli *CLI, env *Env) error {
	m, err := manifest.LoadAll(c.Manifests...)
	if err != nil {
		return err
	}

	var (
		previous map[string]int
		db       *store.Store
	)
	if c.DB != "" {
		db, err = store.Open(c.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		previous, err = db.LoadPriorities(context.Background())
		if err != nil {
			return err
		}
		slog.Debug("previous priorities loaded", "db", c.DB, "count", len(previous))
	}

	decls, types := m.Declarations()
	result, err := order.NewSorter(order.WithLogger(slog.Default())).Sort(decls, types, previous)
	if err != nil {
		return err
	}

	if db != nil {
		run, err := db.SavePriorities(context.Background(), result)
		if err != nil {
			return err
		}
		slog.Info("priorities saved", "db", c.DB, "run", run.ID)
	}

	switch c.Format {
	case "json":
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		return writeTable(env.Stdout, result)
	}
}

func writeTable(w io.Writer, result *order.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tINITIALIZER\tASSEMBLY")
	for _, e := range result.Entries {
		name := e.Name
		if e.Manual {
			name += " (manual)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Priority, name, e.Assembly)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning.Message())
	}
	return nil
}

// CheckCmd validates manifests without printing the order.
type CheckCmd struct {
	Manifests []string `kong:"arg,help='Manifest files (.yaml, .yml, .cue)'"`
	Strict    bool     `kong:"help='Treat warnings as errors'"`
}

// Run executes the check command.
func (c *CheckCmd) Run(cli *CLI, env *Env) error {
	m, err := manifest.LoadAll(c.Manifests...)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	decls, types := m.Declarations()
	result, err := order.NewSorter(order.WithLogger(slog.Default())).Sort(decls, types, nil)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	var problems int
	for _, w := range result.Warnings {
		fmt.Fprintf(env.Stdout, "warning: %s\n", w.Message())
		problems++
	}
	for _, n := range result.Notices {
		switch n.Code {
		case order.NoticeUnknownInitAfter, order.NoticeIgnoredInitAfter, order.NoticeManualPriorityOrdered:
			fmt.Fprintf(env.Stdout, "warning: %s: %s\n", n.Initializer, n.Message)
			problems++
		default:
			fmt.Fprintf(env.Stdout, "note: %s: %s\n", n.Initializer, n.Message)
		}
	}
	for _, u := range m.UnknownTypes() {
		fmt.Fprintf(env.Stdout, "note: %s: %s: no initializer produces %s\n", u.Pos, u.Initializer, u.Type)
	}

	fmt.Fprintf(env.Stdout, "%d initializers, %d edges, %d warnings\n", len(result.Entries), len(result.Edges), problems)

	if c.Strict && problems > 0 {
		return &ExitError{Code: 2, Err: fmt.Errorf("%d warnings", problems)}
	}
	return nil
}

// GraphCmd exports the dependency graph.
type GraphCmd struct {
	Manifests []string `kong:"arg,help='Manifest files (.yaml, .yml, .cue)'"`
	Format    string   `kong:"short='f',enum='dot,mermaid',default='dot',help='Output format'"`
	Output    string   `kong:"short='o',help='Output file (default stdout)'"`
}

// Run executes the graph command.
func (c *GraphCmd) Run(cli *CLI, env *Env) error {
	m, err := manifest.LoadAll(c.Manifests...)
	if err != nil {
		return err
	}

	decls, types := m.Declarations()
	result, err := order.NewSorter(order.WithLogger(slog.Default())).Sort(decls, types, nil)
	if err != nil {
		return err
	}

	var out string
	switch c.Format {
	case "mermaid":
		out = result.Mermaid()
	default:
		out = result.DOT()
	}

	return writeOutput(env.Stdout, c.Output, []byte(out))
}

// ScanCmd discovers initializers and writes a manifest.
type ScanCmd struct {
	Patterns []string `kong:"arg,optional,help='Go package patterns to scan',default='./...'"`
	Output   string   `kong:"short='o',help='Output manifest file (default stdout)'"`
}

// Run executes the scan command.
func (c *ScanCmd) Run(cli *CLI, env *Env) error {
	slog.Info("Scanning packages", "patterns", c.Patterns)

	result, err := scan.NewScanner(scan.WithLogger(slog.Default())).Scan(c.Patterns...)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		slog.Warn(w.String())
	}

	var buf strings.Builder
	if err := result.Manifest.WriteYAML(&buf); err != nil {
		return err
	}
	return writeOutput(env.Stdout, c.Output, []byte(buf.String()))
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &manifest.LoadError{Code: manifest.ErrCodeWriteFailed, Message: err.Error(), Pos: manifest.Pos{File: path}}
	}
	slog.Info("Output written", "path", path)
	return nil
}

// Run parses the process arguments and executes the selected command.
func Run() error {
	return Execute(os.Args[1:], os.Stdout, os.Stderr, os.Exit)
}

// Execute parses args and runs the selected command, writing to stdout and
// stderr. exit is called by kong for --help and --version.
func Execute(args []string, stdout, stderr io.Writer, exit func(int)) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("initargs"),
		kong.Description("Execution order and tooling for initializers with injected arguments"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s) released on %s", version, commit, date),
		},
		kong.Writers(stdout, stderr),
		kong.Exit(exit),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	setupLogger(stderr, cli.LogLevel)

	return kongCtx.Run(&cli, &Env{Stdout: stdout, Stderr: stderr})
}

// ExitCode maps an error returned by Run to a process exit status.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if err != nil {
		return 1
	}
	return 0
}

func setupLogger(w io.Writer, level string) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
