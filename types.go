package codeknowl

import (
	"github.com/jensjohansen/codeknowl/internal/snapshot"
	"github.com/jensjohansen/codeknowl/internal/store"
	"github.com/jensjohansen/codeknowl/internal/walk"
)

// Public type aliases for internal record and bookkeeping types used in the
// Engine and QueryBuilder API. These are Go type aliases (=), identical to
// the internal types at compile time.

type Artifacts = snapshot.Artifacts
type FileRecord = snapshot.FileRecord
type SymbolRecord = snapshot.SymbolRecord
type CallRecord = snapshot.CallRecord
type SourceRange = snapshot.SourceRange
type SymbolKind = snapshot.SymbolKind
type Manifest = snapshot.Manifest

type Repo = store.Repo
type Run = store.Run
type RunStatus = store.RunStatus

type WalkOptions = walk.Options

const (
	Function = snapshot.Function
	Class    = snapshot.Class
	Method   = snapshot.Method
)

const (
	RunRunning   = store.RunRunning
	RunSucceeded = store.RunSucceeded
	RunFailed    = store.RunFailed
)

// Query type tags reported in response envelopes and metrics.
const (
	QueryWhereDefined = "where_is_symbol_defined"
	QueryCallers      = "what_calls_symbol"
	QueryExplainFile  = "explain_file_stub"
	QueryEvidence     = "evidence"
	QueryAsk          = "ask"
)

// QuerySpec echoes the request inside a response envelope.
type QuerySpec struct {
	Type       string `json:"type"`
	SymbolName string `json:"symbol_name,omitempty"`
	CalleeName string `json:"callee_name,omitempty"`
	Mode       string `json:"mode,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	Question   string `json:"question,omitempty"`
}

// Response is the envelope returned by the Engine's repository-level query
// methods. List queries set Results; single-object queries set Result.
type Response struct {
	RepoID     string    `json:"repo_id"`
	HeadCommit string    `json:"head_commit"`
	Query      QuerySpec `json:"query"`
	Results    any       `json:"results,omitempty"`
	Result     any       `json:"result,omitempty"`
}

// AskResponse is the envelope returned by Engine.Ask.
type AskResponse struct {
	RepoID     string     `json:"repo_id"`
	HeadCommit string     `json:"head_commit"`
	Query      QuerySpec  `json:"query"`
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Evidence   *Evidence  `json:"evidence"`
}

// RepoStatus is a repository record together with its most recent run in
// any status. LatestRun is nil for a repository that was never indexed.
type RepoStatus struct {
	Repo
	LatestRun *Run `json:"latest_index_run"`
}
