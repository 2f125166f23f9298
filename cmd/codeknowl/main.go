package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jensjohansen/codeknowl"
	"github.com/jensjohansen/codeknowl/internal/config"
	"github.com/jensjohansen/codeknowl/internal/logging"
	"github.com/jensjohansen/codeknowl/internal/snapshot"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !a.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		stop()
		os.Exit(1)
	}
}

// app carries flag values and resolved settings for one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	flagConfig string
	flagFormat string

	cfg    *config.Config
	logger *slog.Logger

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool
}

func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "codeknowl",
		Short:         "Citation-backed code knowledge for local repositories",
		Long:          "CodeKnowl indexes local git checkouts into commit-addressed snapshots of files, symbol definitions and call sites, and answers questions against them with citations.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(a.flagFormat); err != nil {
				return err
			}
			return a.loadConfig(cmd)
		},
		// No Run: prints help by default.
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	// data-dir, log-level and log-format are read through config.Load.
	pf.String("data-dir", "", "directory holding the run store and snapshots (default .codeknowl)")
	pf.StringVar(&a.flagConfig, "config", "", "config file (default <data-dir>/config.yaml if present)")
	pf.StringVar(&a.flagFormat, "format", "json", "output format: json|text")
	pf.String("log-level", "", "log level: debug|info|warn|error")
	pf.String("log-format", "", "log format: text|json")

	root.AddCommand(newRepoCmd(a))
	root.AddCommand(newQueryCmd(a))
	root.AddCommand(newAskCmd(a))
	root.AddCommand(newLLMCmd(a))
	return root, a
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flagConfig, cmd.Flags())
	if err != nil {
		return a.outputError(cmd, err)
	}
	level, _ := logging.LevelFromString(cfg.Log.Level)
	format, _ := logging.ParseFormat(cfg.Log.Format)
	a.cfg = cfg
	a.logger = logging.New(a.stderr, level, format)
	if cfg.File != "" {
		a.logger.Debug("config loaded", "file", cfg.File)
	}
	return nil
}

// openEngine creates an Engine over the configured data directory.
func (a *app) openEngine(opts ...codeknowl.Option) (*codeknowl.Engine, error) {
	base := []codeknowl.Option{
		codeknowl.WithLogger(a.logger),
		codeknowl.WithWalkOptions(a.cfg.WalkOptions()),
		codeknowl.WithWorkers(a.cfg.Index.Workers),
	}
	e, err := codeknowl.New(a.cfg.DataDir, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// output writes v to stdout as sorted-key JSON, or through text when the
// text format is selected.
func (a *app) output(v any, text func(w io.Writer)) error {
	if a.flagFormat == "text" {
		text(a.stdout)
		return nil
	}
	data, err := snapshot.Marshal(v)
	if err != nil {
		return err
	}
	_, err = a.stdout.Write(data)
	return err
}

// outputError writes err in the selected format and returns it so RunE can
// propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIError envelope; in text mode it goes to stderr.
func (a *app) outputError(cmd *cobra.Command, err error) error {
	a.errorHandled = true
	if a.flagFormat == "text" {
		fmt.Fprintf(a.stderr, "Error: %s\n", err)
		return err
	}
	data, merr := snapshot.Marshal(CLIError{
		Command: commandName(cmd),
		Error:   err.Error(),
		Kind:    string(codeknowl.KindOf(err)),
	})
	if merr == nil {
		a.stdout.Write(data)
	}
	return err
}

// commandName returns the command path without the binary name,
// e.g. "repo index".
func commandName(cmd *cobra.Command) string {
	path := cmd.CommandPath()
	if i := strings.IndexByte(path, ' '); i >= 0 {
		return path[i+1:]
	}
	return path
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
