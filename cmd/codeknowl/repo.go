package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jensjohansen/codeknowl"
	"github.com/jensjohansen/codeknowl/internal/metrics"
)

func newRepoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Register, list, index and inspect repositories",
	}
	cmd.AddCommand(
		newRepoRegisterCmd(a),
		newRepoListCmd(a),
		newRepoIndexCmd(a),
		newRepoStatusCmd(a),
	)
	return cmd
}

func newRepoRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <path>",
		Short: "Register a local repository checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			repo, err := e.RegisterRepo(args[0])
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.output(repo, func(w io.Writer) { formatReposText(w, []*codeknowl.Repo{repo}) })
		},
	}
}

func newRepoListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered repositories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			repos, err := e.ListRepos()
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.output(repos, func(w io.Writer) { formatReposText(w, repos) })
		},
	}
}

func newRepoIndexCmd(a *app) *cobra.Command {
	var (
		metricsTextfile string
		noWait          bool
	)
	cmd := &cobra.Command{
		Use:   "index <repo_id>",
		Short: "Index the repository at its current head commit",
		Long:  "Walks the checkout, extracts symbol definitions and call sites, and publishes a snapshot addressed by the head commit. A failed run is recorded with its error.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []codeknowl.Option
			if noWait {
				opts = append(opts, codeknowl.WithNonBlockingRuns())
			}
			e, err := a.openEngine(opts...)
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			start := time.Now()
			run, err := e.IndexRepo(cmd.Context(), args[0])
			if metricsTextfile != "" {
				if werr := metrics.WriteTextfile(metricsTextfile); werr != nil {
					a.logger.Warn("write metrics textfile", "path", metricsTextfile, "error", werr)
				}
			}
			if err != nil {
				return a.outputError(cmd, err)
			}
			fmt.Fprintf(a.stderr, "Indexed %s at %s in %s\n", run.RepoID, run.HeadCommit, time.Since(start).Round(time.Millisecond))
			return a.output(run, func(w io.Writer) { formatRunText(w, run) })
		},
	}
	cmd.Flags().Int("workers", 1, "files parsed concurrently (output is identical for any value)")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "fail instead of waiting when a run for the repository is in flight")
	return cmd
}

func newRepoStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <repo_id>",
		Short: "Show a repository and its latest index run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			status, err := e.RepoStatus(args[0])
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.output(status, func(w io.Writer) { formatStatusText(w, status) })
		},
	}
}
