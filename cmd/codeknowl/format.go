package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jensjohansen/codeknowl"
)

const timeFormat = time.RFC3339

// formatReposText formats repositories as aligned columns.
func formatReposText(w io.Writer, repos []*codeknowl.Repo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPO_ID\tLOCAL_PATH\tCREATED")
	for _, r := range repos {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.LocalPath, r.CreatedAt.Format(timeFormat))
	}
	tw.Flush()
}

// formatRunText formats one index run as aligned key/value lines.
func formatRunText(w io.Writer, run *codeknowl.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", run.ID)
	fmt.Fprintf(tw, "Repo:\t%s\n", run.RepoID)
	fmt.Fprintf(tw, "Status:\t%s\n", run.Status)
	fmt.Fprintf(tw, "Started:\t%s\n", run.StartedAt.Format(timeFormat))
	if run.FinishedAt != nil {
		fmt.Fprintf(tw, "Finished:\t%s\n", run.FinishedAt.Format(timeFormat))
	}
	if run.HeadCommit != "" {
		fmt.Fprintf(tw, "Head:\t%s\n", run.HeadCommit)
	}
	if run.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", run.Error)
	}
	tw.Flush()
}

// formatStatusText formats a repository and its latest run.
func formatStatusText(w io.Writer, status *codeknowl.RepoStatus) {
	fmt.Fprintf(w, "Repo: %s\n", status.ID)
	fmt.Fprintf(w, "Path: %s\n", status.LocalPath)
	fmt.Fprintln(w)
	if status.LatestRun == nil {
		fmt.Fprintln(w, "Never indexed.")
		return
	}
	fmt.Fprintln(w, "Latest index run:")
	formatRunText(w, status.LatestRun)
}

// formatDefinitionsText formats definitions as aligned columns.
func formatDefinitionsText(w io.Writer, defs []codeknowl.Definition) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tFILE\tLINES\tSYMBOL_ID")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\t%s\n",
			d.Kind, d.Name, d.Citation.FilePath, d.Citation.StartLine, d.Citation.EndLine, d.SymbolID)
	}
	tw.Flush()
}

// formatCallSitesText formats call sites as "file:line  callee" lines.
func formatCallSitesText(w io.Writer, sites []codeknowl.CallSite) {
	for _, s := range sites {
		fmt.Fprintf(w, "%s:%d  %s\n", s.Citation.FilePath, s.Citation.StartLine, s.CalleeExprPreview)
	}
}

// formatFileStubText formats a file summary.
func formatFileStubText(w io.Writer, stub *codeknowl.FileStub) {
	fmt.Fprintf(w, "File: %s\n", stub.File.Path)
	fmt.Fprintf(w, "Language: %s\n", stub.File.Language)
	fmt.Fprintf(w, "Size: %d bytes\n", stub.File.SizeBytes)
	fmt.Fprintln(w)
	if len(stub.TopSymbols) > 0 {
		fmt.Fprintln(w, "Top Symbols:")
		formatDefinitionsText(w, stub.TopSymbols)
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Note: %s\n", stub.Note)
}

// formatEvidenceText formats the sections of an evidence bundle that fired.
func formatEvidenceText(w io.Writer, ev *codeknowl.Evidence) {
	fmt.Fprintf(w, "Question: %s\n", ev.Question)
	if ev.FileStub != nil {
		fmt.Fprintln(w)
		formatFileStubText(w, ev.FileStub)
	}
	if ev.WhereDefined != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Definitions:")
		formatDefinitionsText(w, ev.WhereDefined)
	}
	if ev.CallSites != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Call Sites:")
		formatCallSitesText(w, ev.CallSites)
	}
	if ev.Hint != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Hint: %s\n", ev.Hint)
	}
}

// formatCitationsText formats citations as "file:start-end" lines.
func formatCitationsText(w io.Writer, citations []codeknowl.Citation) {
	for _, c := range citations {
		fmt.Fprintf(w, "  %s:%d-%d\n", c.FilePath, c.StartLine, c.EndLine)
	}
}

// formatAskText formats a generated answer followed by its citations.
func formatAskText(w io.Writer, resp *codeknowl.AskResponse) {
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Citations:")
		formatCitationsText(w, resp.Citations)
	}
}

// formatModelsText lists model IDs, falling back to the entry itself when an
// entry has no id.
func formatModelsText(w io.Writer, models []map[string]any) {
	ids := make([]string, 0, len(models))
	for _, m := range models {
		if id, ok := m["id"].(string); ok {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, fmt.Sprint(m))
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
}

// formatResponseText dispatches on the payload of a query envelope.
func formatResponseText(w io.Writer, resp *codeknowl.Response) {
	fmt.Fprintf(w, "# %s @ %s\n", resp.RepoID, resp.HeadCommit)
	switch v := resp.Results.(type) {
	case []codeknowl.Definition:
		formatDefinitionsText(w, v)
	case []codeknowl.CallSite:
		formatCallSitesText(w, v)
	}
	switch v := resp.Result.(type) {
	case *codeknowl.FileStub:
		formatFileStubText(w, v)
	case *codeknowl.Evidence:
		formatEvidenceText(w, v)
	}
}
