package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jensjohansen/codeknowl"
	"github.com/jensjohansen/codeknowl/internal/llm"
)

func newQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the latest successful snapshot of a repository",
		Long:  "Run structural queries against the latest successfully indexed commit. All line numbers are 1-based.",
	}
	cmd.AddCommand(
		newQueryCmdFor(a, "where <repo_id> <symbol_name>", "Find definitions of a symbol by exact name",
			func(e *codeknowl.Engine, repoID, arg string) (*codeknowl.Response, error) {
				return e.WhereDefined(repoID, arg)
			}),
		newQueryCmdFor(a, "callers <repo_id> <callee_name>", "Find call sites that plausibly call a name (best effort, over-matches)",
			func(e *codeknowl.Engine, repoID, arg string) (*codeknowl.Response, error) {
				return e.Callers(repoID, arg)
			}),
		newQueryCmdFor(a, "explain <repo_id> <file_path>", "Summarize a file's inventory record and top symbols",
			func(e *codeknowl.Engine, repoID, arg string) (*codeknowl.Response, error) {
				return e.ExplainFile(repoID, arg)
			}),
		newQueryCmdFor(a, "evidence <repo_id> <question...>", "Show the evidence bundle built for a question",
			func(e *codeknowl.Engine, repoID, arg string) (*codeknowl.Response, error) {
				return e.Evidence(repoID, arg)
			}),
	)
	return cmd
}

type queryFunc func(e *codeknowl.Engine, repoID, arg string) (*codeknowl.Response, error)

// newQueryCmdFor builds a query subcommand taking a repo ID and one argument.
// Remaining words are joined so questions need no quoting.
func newQueryCmdFor(a *app, use, short string, run queryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			resp, err := run(e, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.output(resp, func(w io.Writer) { formatResponseText(w, resp) })
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <repo_id> <question...>",
		Short: "Answer a question from the evidence bundle with the configured LLM",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.NewClient(a.cfg.LLM, a.logger)
			if err != nil {
				return a.outputError(cmd, err)
			}
			e, err := a.openEngine(codeknowl.WithGenerator(client))
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			resp, err := e.Ask(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.output(resp, func(w io.Writer) { formatAskText(w, resp) })
		},
	}
}

func newLLMCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Inspect the configured LLM endpoint",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List models served by the configured endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.NewClient(a.cfg.LLM, a.logger)
			if err != nil {
				return a.outputError(cmd, err)
			}
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.output(models, func(w io.Writer) { formatModelsText(w, models) })
		},
	})
	return cmd
}
