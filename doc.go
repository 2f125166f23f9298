// Package codeknowl indexes local repository checkouts into immutable,
// commit-addressed snapshots and answers structural questions against them,
// every answer carrying file and line citations.
//
// # Pipeline
//
// An index run operates in three steps:
//
//  1. Walk: enumerate regular files under the checkout, skipping
//     version-control metadata, dependency and build output and the tool's
//     own state directory, and sort the inventory by path.
//
//  2. Extract: parse each file in a supported language (Python, JavaScript,
//     TypeScript, TSX, Java, Go) with tree-sitter and emit symbol definitions
//     and call sites from per-language matcher tables.
//
//  3. Publish: write files.json, symbols.json, calls.json and manifest.json
//     into a temporary directory and rename it into place under
//     artifacts/<repo_id>/<head_commit>.
//
// Runs are recorded in a SQLite store. Queries always read the snapshot of
// the latest successful run.
//
// # Usage
//
//	e, err := codeknowl.New(".codeknowl")
//	if err != nil { ... }
//	defer e.Close()
//
//	repo, err := e.RegisterRepo("path/to/checkout")
//	run, err := e.IndexRepo(ctx, repo.ID)
//
//	resp, err := e.WhereDefined(repo.ID, "parseConfig")
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] provides:
//
//   - [QueryBuilder.WhereDefined]: exact, case-sensitive definition lookup.
//   - [QueryBuilder.Callers]: best-effort call sites; callee text is never
//     resolved, so expect over-matching.
//   - [QueryBuilder.ExplainFile]: a file's record and its first 25 symbols.
//   - [QueryBuilder.Evidence]: a citation bundle assembled from a free-text
//     question.
//   - [QueryBuilder.Ask]: the evidence bundle handed to a [Generator] that
//     must answer from it alone.
//
// The Engine wraps each query in a [Response] envelope naming the repository
// and the commit the answer was computed at.
package codeknowl
