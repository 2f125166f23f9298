package codeknowl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jensjohansen/codeknowl/internal/errkind"
	"github.com/jensjohansen/codeknowl/internal/extract"
	"github.com/jensjohansen/codeknowl/internal/gitrepo"
	"github.com/jensjohansen/codeknowl/internal/logging"
	"github.com/jensjohansen/codeknowl/internal/metrics"
	"github.com/jensjohansen/codeknowl/internal/snapshot"
	"github.com/jensjohansen/codeknowl/internal/store"
	"github.com/jensjohansen/codeknowl/internal/walk"
)

// HeadCommitFunc resolves the commit a repository checkout is at.
type HeadCommitFunc func(ctx context.Context, repoPath string) (string, error)

// Engine orchestrates the pipeline: repository registration, index runs
// (walk, extract, publish a snapshot) and query access to the latest
// successful snapshot of each repository.
type Engine struct {
	dataDir     string
	store       *store.Store
	logger      *slog.Logger
	walkOpts    walk.Options
	workers     int
	headCommit  HeadCommitFunc
	generator   Generator
	nonBlocking bool

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the Engine's logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWalkOptions replaces the default ignore set and state prefix used when
// enumerating repository files.
func WithWalkOptions(opts WalkOptions) Option {
	return func(e *Engine) {
		e.walkOpts = opts
	}
}

// WithWorkers sets how many files are parsed concurrently during an index
// run. Snapshots are byte-identical for any worker count.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithHeadCommitFunc replaces `git rev-parse HEAD` as the source of a
// repository's head commit.
func WithHeadCommitFunc(fn HeadCommitFunc) Option {
	return func(e *Engine) {
		e.headCommit = fn
	}
}

// WithGenerator sets the answer generator used by Ask.
func WithGenerator(g Generator) Option {
	return func(e *Engine) {
		e.generator = g
	}
}

// WithNonBlockingRuns makes IndexRepo fail with Conflict instead of waiting
// when the repository already has a run in flight.
func WithNonBlockingRuns() Option {
	return func(e *Engine) {
		e.nonBlocking = true
	}
}

// New creates an Engine keeping its run store and snapshots under dataDir.
func New(dataDir string, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("codeknowl: create data dir: %w", err)
	}
	s, err := store.NewStore(filepath.Join(dataDir, store.DBFileName))
	if err != nil {
		return nil, fmt.Errorf("codeknowl: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("codeknowl: migrate: %w", err)
	}

	e := &Engine{
		dataDir:    dataDir,
		store:      s,
		walkOpts:   walk.DefaultOptions(),
		workers:    1,
		headCommit: gitrepo.HeadCommit,
		locks:      make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewDiscard()
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// DataDir returns the directory holding the run store and snapshots.
func (e *Engine) DataDir() string {
	return e.dataDir
}

// RegisterRepo records the local checkout at path. The path is stored in
// absolute form and must be an existing directory.
func (e *Engine) RegisterRepo(path string) (*Repo, error) {
	if path == "" {
		return nil, errkind.New(errkind.InvalidInput, "register repo", "local path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, "register repo", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errkind.Errorf(errkind.NotFound, "register repo", "path not found: %s", abs)
	}
	if !info.IsDir() {
		return nil, errkind.Errorf(errkind.InvalidInput, "register repo", "not a directory: %s", abs)
	}

	repo, err := e.store.RegisterRepo(abs)
	if err != nil {
		return nil, err
	}
	e.logger.Info("repo registered", "repo_id", repo.ID, "local_path", repo.LocalPath)
	return repo, nil
}

// ListRepos returns all registered repositories, newest first.
func (e *Engine) ListRepos() ([]*Repo, error) {
	repos, err := e.store.ListRepos()
	if err != nil {
		return nil, err
	}
	if repos == nil {
		repos = []*Repo{}
	}
	return repos, nil
}

// RepoStatus returns the repository and its most recent run.
func (e *Engine) RepoStatus(repoID string) (*RepoStatus, error) {
	repo, err := e.store.GetRepo(repoID)
	if err != nil {
		return nil, err
	}
	latest, err := e.store.LatestRun(repoID)
	if err != nil {
		return nil, err
	}
	return &RepoStatus{Repo: *repo, LatestRun: latest}, nil
}

// acquire takes the repository's run slot. The returned func releases it.
func (e *Engine) acquire(ctx context.Context, repoID string) (func(), error) {
	e.mu.Lock()
	slot, ok := e.locks[repoID]
	if !ok {
		slot = make(chan struct{}, 1)
		e.locks[repoID] = slot
	}
	e.mu.Unlock()

	release := func() { <-slot }
	if e.nonBlocking {
		select {
		case slot <- struct{}{}:
			return release, nil
		default:
			return nil, errkind.Errorf(errkind.Conflict, "index repo", "repo %s already has an index run in flight", repoID)
		}
	}
	select {
	case slot <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IndexRepo runs a full index of the repository: resolve the head commit,
// walk the checkout, extract symbols and calls, and publish the snapshot.
// At most one run per repository executes at a time.
//
// A failed run is recorded with its error text and returned together with
// the error; per-file read and parse faults are skipped, not failures.
func (e *Engine) IndexRepo(ctx context.Context, repoID string) (*Run, error) {
	repo, err := e.store.GetRepo(repoID)
	if err != nil {
		return nil, err
	}
	release, err := e.acquire(ctx, repoID)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := e.store.StartRun(repoID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	log := e.logger.With("repo_id", repoID, "run_id", run.ID)
	log.Info("index run started", "local_path", repo.LocalPath)

	head, manifest, err := e.index(ctx, log, repo)
	if err != nil {
		failed := e.failRun(log, run, start, err)
		if errkind.Of(err) == "" && ctx.Err() == nil {
			err = errkind.Wrap(errkind.ExtractionFailure, "index repo", err)
		}
		return failed, err
	}

	done, err := e.store.CompleteRun(run.ID, head)
	if err != nil {
		// The snapshot is published but the run cannot be marked succeeded.
		err = fmt.Errorf("record completed run: %w", err)
		return e.failRun(log, run, start, err), err
	}
	metrics.RecordIndexRun(string(RunSucceeded), time.Since(start))
	metrics.RecordExtracted(manifest.FileCount, manifest.SymbolCount, manifest.CallCount)
	log.Info("index run succeeded",
		"head_commit", head,
		"files", manifest.FileCount,
		"symbols", manifest.SymbolCount,
		"calls", manifest.CallCount,
		"duration", time.Since(start),
	)
	return done, nil
}

// failRun records run as failed with cause and returns the stored record,
// or run itself when the store cannot be updated.
func (e *Engine) failRun(log *slog.Logger, run *Run, start time.Time, cause error) *Run {
	failed, err := e.store.FailRun(run.ID, cause.Error())
	if err != nil {
		log.Error("record failed run", "error", err)
		failed = run
	}
	metrics.RecordIndexRun(string(RunFailed), time.Since(start))
	log.Warn("index run failed", "error", cause, "duration", time.Since(start))
	return failed
}

func (e *Engine) index(ctx context.Context, log *slog.Logger, repo *Repo) (string, *Manifest, error) {
	head, err := e.headCommit(ctx, repo.LocalPath)
	if err != nil {
		return "", nil, fmt.Errorf("resolve head commit: %w", err)
	}

	walkOpts := e.walkOpts
	walkOpts.Logger = log
	files, err := walk.New(walkOpts).Walk(repo.LocalPath)
	if err != nil {
		return "", nil, err
	}

	res, err := extract.New(extract.WithWorkers(e.workers), extract.WithLogger(log)).
		Extract(ctx, repo.LocalPath, files)
	if err != nil {
		return "", nil, fmt.Errorf("extract: %w", err)
	}
	for _, s := range res.Skipped {
		metrics.RecordSkippedFile(s.Reason)
	}
	log.Debug("extraction done", "parsed", res.Parsed, "skipped", len(res.Skipped))

	a := &Artifacts{Files: files, Symbols: res.Symbols, Calls: res.Calls}
	dir, err := snapshot.Write(e.dataDir, repo.ID, head, a)
	if err != nil {
		return "", nil, err
	}
	log.Debug("snapshot published", "dir", dir)

	return head, &Manifest{
		SchemaVersion: snapshot.SchemaVersion,
		RepoID:        repo.ID,
		HeadCommit:    head,
		FileCount:     len(files),
		SymbolCount:   len(res.Symbols),
		CallCount:     len(res.Calls),
	}, nil
}

// Snapshot loads the latest successful snapshot of repoID. It returns
// ErrNoSuccessfulRun when the repository has none.
func (e *Engine) Snapshot(repoID string) (string, *Artifacts, error) {
	if _, err := e.store.GetRepo(repoID); err != nil {
		return "", nil, err
	}
	head, err := e.store.LatestSuccessfulHead(repoID)
	if err != nil {
		return "", nil, err
	}
	a, err := snapshot.Load(e.dataDir, repoID, head)
	if err != nil {
		return "", nil, err
	}
	return head, a, nil
}

// Query returns a QueryBuilder over the latest successful snapshot of
// repoID and the commit it was taken at.
func (e *Engine) Query(repoID string) (*QueryBuilder, string, error) {
	head, a, err := e.Snapshot(repoID)
	if err != nil {
		return nil, "", err
	}
	return NewQueryBuilder(a), head, nil
}

// WhereDefined answers QueryBuilder.WhereDefined against repoID.
func (e *Engine) WhereDefined(repoID, name string) (*Response, error) {
	if name == "" {
		return nil, errkind.New(errkind.InvalidInput, "where defined", "symbol name is required")
	}
	q, head, err := e.Query(repoID)
	if err != nil {
		return nil, err
	}
	defs, err := q.WhereDefined(name)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuery(QueryWhereDefined)
	return &Response{
		RepoID:     repoID,
		HeadCommit: head,
		Query:      QuerySpec{Type: QueryWhereDefined, SymbolName: name},
		Results:    defs,
	}, nil
}

// Callers answers QueryBuilder.Callers against repoID.
func (e *Engine) Callers(repoID, callee string) (*Response, error) {
	if callee == "" {
		return nil, errkind.New(errkind.InvalidInput, "callers", "callee name is required")
	}
	q, head, err := e.Query(repoID)
	if err != nil {
		return nil, err
	}
	sites, err := q.Callers(callee)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuery(QueryCallers)
	return &Response{
		RepoID:     repoID,
		HeadCommit: head,
		Query:      QuerySpec{Type: QueryCallers, CalleeName: callee, Mode: "best_effort"},
		Results:    sites,
	}, nil
}

// ExplainFile answers QueryBuilder.ExplainFile against repoID.
func (e *Engine) ExplainFile(repoID, path string) (*Response, error) {
	if path == "" {
		return nil, errkind.New(errkind.InvalidInput, "explain file", "file path is required")
	}
	q, head, err := e.Query(repoID)
	if err != nil {
		return nil, err
	}
	stub, err := q.ExplainFile(path)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuery(QueryExplainFile)
	return &Response{
		RepoID:     repoID,
		HeadCommit: head,
		Query:      QuerySpec{Type: QueryExplainFile, FilePath: path},
		Result:     stub,
	}, nil
}

// Evidence builds the evidence bundle for question against repoID.
func (e *Engine) Evidence(repoID, question string) (*Response, error) {
	q, head, err := e.queryFor(repoID, question, "evidence")
	if err != nil {
		return nil, err
	}
	ev, _, err := q.Evidence(question)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuery(QueryEvidence)
	return &Response{
		RepoID:     repoID,
		HeadCommit: head,
		Query:      QuerySpec{Type: QueryEvidence, Question: question},
		Result:     ev,
	}, nil
}

// Ask answers question against repoID with the configured generator.
func (e *Engine) Ask(ctx context.Context, repoID, question string) (*AskResponse, error) {
	if e.generator == nil {
		return nil, errkind.New(errkind.InvalidInput, "ask", "no answer generator configured")
	}
	q, head, err := e.queryFor(repoID, question, "ask")
	if err != nil {
		return nil, err
	}
	res, err := q.Ask(ctx, e.generator, question)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuery(QueryAsk)
	return &AskResponse{
		RepoID:     repoID,
		HeadCommit: head,
		Query:      QuerySpec{Type: QueryAsk, Question: question},
		Answer:     res.Answer,
		Citations:  res.Citations,
		Evidence:   res.Evidence,
	}, nil
}

func (e *Engine) queryFor(repoID, question, op string) (*QueryBuilder, string, error) {
	if question == "" {
		return nil, "", errkind.New(errkind.InvalidInput, op, "question is required")
	}
	return e.Query(repoID)
}
