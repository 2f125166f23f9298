// Package extract walks tree-sitter syntax trees and emits symbol-definition
// and call-site records according to the matcher tables in package lang.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/jensjohansen/codeknowl/internal/lang"
	"github.com/jensjohansen/codeknowl/internal/logging"
	"github.com/jensjohansen/codeknowl/internal/snapshot"
)

// Skip reasons reported in Result.Skipped.
const (
	SkipRead  = "read"
	SkipParse = "parse"
)

// Skipped records a file that was left out of extraction.
type Skipped struct {
	Path   string
	Reason string
	Err    error
}

// Result is the merged output of one extraction pass. Records appear in
// inventory order, then in traversal order within each file.
type Result struct {
	Symbols []snapshot.SymbolRecord
	Calls   []snapshot.CallRecord
	Parsed  int
	Skipped []Skipped
}

// Extractor parses files and applies the matcher tables.
type Extractor struct {
	workers int
	logger  *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWorkers sets how many files are parsed concurrently. Values below 2
// select the serial path. Output ordering is identical either way.
func WithWorkers(n int) Option {
	return func(x *Extractor) {
		x.workers = n
	}
}

// WithLogger sets the logger used for per-file skips.
func WithLogger(l *slog.Logger) Option {
	return func(x *Extractor) {
		x.logger = l
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	x := &Extractor{workers: 1}
	for _, opt := range opts {
		opt(x)
	}
	if x.logger == nil {
		x.logger = logging.NewDiscard()
	}
	return x
}

type fileOutput struct {
	symbols []snapshot.SymbolRecord
	calls   []snapshot.CallRecord
	skipped *Skipped
	parsed  bool
}

// Extract reads every supported file of the inventory from root and extracts
// its records. Unreadable or unparsable files are skipped and reported; the
// pass only fails when ctx is cancelled.
func (x *Extractor) Extract(ctx context.Context, root string, files []snapshot.FileRecord) (*Result, error) {
	var todo []snapshot.FileRecord
	for _, f := range files {
		if lang.Supported(f.Language) {
			todo = append(todo, f)
		}
	}

	outputs := make([]fileOutput, len(todo))
	if x.workers < 2 {
		for i, f := range todo {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outputs[i] = x.extractFile(ctx, root, f)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(x.workers)
		for i, f := range todo {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				// Each slot is written by exactly one goroutine.
				outputs[i] = x.extractFile(gctx, root, f)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, out := range outputs {
		res.Symbols = append(res.Symbols, out.symbols...)
		res.Calls = append(res.Calls, out.calls...)
		if out.parsed {
			res.Parsed++
		}
		if out.skipped != nil {
			res.Skipped = append(res.Skipped, *out.skipped)
		}
	}
	return res, nil
}

func (x *Extractor) extractFile(ctx context.Context, root string, f snapshot.FileRecord) fileOutput {
	src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path)))
	if err != nil {
		x.logger.Warn("extract: skipping unreadable file", "path", f.Path, "error", err)
		return fileOutput{skipped: &Skipped{Path: f.Path, Reason: SkipRead, Err: err}}
	}

	symbols, calls, err := Source(ctx, f.Path, src)
	if err != nil {
		x.logger.Warn("extract: skipping unparsable file", "path", f.Path, "error", err)
		return fileOutput{skipped: &Skipped{Path: f.Path, Reason: SkipParse, Err: err}}
	}
	x.logger.Debug("extract: file done", "path", f.Path, "symbols", len(symbols), "calls", len(calls))
	return fileOutput{symbols: symbols, calls: calls, parsed: true}
}

// Source parses src as the language implied by relPath and returns its
// definitions and call sites. relPath is recorded verbatim on every record.
func Source(ctx context.Context, relPath string, src []byte) ([]snapshot.SymbolRecord, []snapshot.CallRecord, error) {
	grammar, ok := lang.GrammarForFile(relPath)
	if !ok {
		return nil, nil, fmt.Errorf("no grammar for %s", relPath)
	}
	idx, ok := lang.IndexFor(lang.LanguageForFile(relPath))
	if !ok {
		return nil, nil, fmt.Errorf("no matcher table for %s", relPath)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	symbols, calls := collect(tree.RootNode(), src, relPath, idx)
	return symbols, calls, nil
}

// collect applies idx to every node under root.
func collect(root *sitter.Node, src []byte, relPath string, idx *lang.Index) ([]snapshot.SymbolRecord, []snapshot.CallRecord) {
	var (
		symbols []snapshot.SymbolRecord
		calls   []snapshot.CallRecord
	)
	walkTree(root, func(n *sitter.Node) {
		typ := n.Type()
		if dm, ok := idx.Defs[typ]; ok {
			if nameNode := n.ChildByFieldName(dm.NameField); nameNode != nil {
				name := nodeText(nameNode, src)
				r := rangeOf(n)
				symbols = append(symbols, snapshot.SymbolRecord{
					SymbolID: snapshot.SymbolID(relPath, dm.Kind, name, r.StartLine),
					Kind:     dm.Kind,
					Name:     name,
					FilePath: relPath,
					Range:    r,
				})
			}
		}
		if cm, ok := idx.Calls[typ]; ok {
			if callee := n.ChildByFieldName(cm.CalleeField); callee != nil {
				calls = append(calls, snapshot.CallRecord{
					CalleeName: nodeText(callee, src),
					FilePath:   relPath,
					Range:      rangeOf(n),
				})
			}
		}
	})
	return symbols, calls
}

// walkTree visits every node depth-first, parents before children,
// children left to right.
func walkTree(root *sitter.Node, visit func(*sitter.Node)) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(n)
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil {
				stack = append(stack, c)
			}
		}
	}
}

func nodeText(n *sitter.Node, src []byte) string {
	return decode(src[n.StartByte():n.EndByte()])
}

// decode converts source bytes to text. Each maximal run of invalid UTF-8
// bytes becomes a single U+FFFD, not one replacement per invalid sequence.
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// rangeOf converts the parser's 0-based points to a 1-based SourceRange.
func rangeOf(n *sitter.Node) snapshot.SourceRange {
	start, end := n.StartPoint(), n.EndPoint()
	return snapshot.SourceRange{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}
