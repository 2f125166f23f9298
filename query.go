package codeknowl

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jensjohansen/codeknowl/internal/errkind"
)

const (
	// previewLimit is the number of characters of callee text shown in a
	// call site before it is cut with an ellipsis.
	previewLimit = 200
	// topSymbolsLimit bounds the symbols listed by ExplainFile.
	topSymbolsLimit = 25
	// stubNote marks ExplainFile output as a structural summary.
	stubNote = "Deterministic stub; LLM-backed explanation will be added later."
)

// QueryBuilder answers structural questions against one loaded snapshot.
// It never touches the filesystem or the run store.
type QueryBuilder struct {
	artifacts *Artifacts
}

// NewQueryBuilder wraps an in-memory snapshot. A nil snapshot behaves as an
// empty one.
func NewQueryBuilder(a *Artifacts) *QueryBuilder {
	if a == nil {
		a = &Artifacts{}
	}
	return &QueryBuilder{artifacts: a}
}

// Artifacts returns the snapshot the builder queries.
func (q *QueryBuilder) Artifacts() *Artifacts {
	return q.artifacts
}

// Citation anchors an answer to a line span of one file.
type Citation struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Definition is a symbol definition with its citation.
type Definition struct {
	SymbolID string     `json:"symbol_id"`
	Kind     SymbolKind `json:"kind"`
	Name     string     `json:"name"`
	Citation Citation   `json:"citation"`
}

// CallSite is one call whose callee text matched a callers query.
// CalleeExprPreview is cut to 200 characters; the stored text is not.
type CallSite struct {
	CalleeExprPreview string   `json:"callee_expr_preview"`
	Citation          Citation `json:"citation"`
}

// FileStub is the structural summary of one file.
type FileStub struct {
	File       FileRecord   `json:"file"`
	TopSymbols []Definition `json:"top_symbols"`
	Note       string       `json:"note"`
	Citations  []Citation   `json:"citations"`
}

func definitionOf(s SymbolRecord) Definition {
	return Definition{
		SymbolID: s.SymbolID,
		Kind:     s.Kind,
		Name:     s.Name,
		Citation: Citation{
			FilePath:  s.FilePath,
			StartLine: s.Range.StartLine,
			EndLine:   s.Range.EndLine,
		},
	}
}

// WhereDefined returns every symbol whose name equals name exactly
// (case-sensitive), ordered by file path, start line, name and kind.
func (q *QueryBuilder) WhereDefined(name string) ([]Definition, error) {
	if name == "" {
		return nil, errkind.New(errkind.InvalidInput, "where defined", "symbol name is required")
	}

	var matches []SymbolRecord
	for _, s := range q.artifacts.Symbols {
		if s.Name == name {
			matches = append(matches, s)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.Range.StartLine != b.Range.StartLine {
			return a.Range.StartLine < b.Range.StartLine
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Kind < b.Kind
	})

	defs := make([]Definition, 0, len(matches))
	for _, s := range matches {
		defs = append(defs, definitionOf(s))
	}
	return defs, nil
}

// Callers returns call sites whose callee text plausibly refers to callee,
// in snapshot order.
//
// This is best effort and over-matches on purpose: callee text is never
// resolved, and any text containing callee matches, so "foo" also finds
// "foobar()" and "food.eat()". See calleeMatches.
func (q *QueryBuilder) Callers(callee string) ([]CallSite, error) {
	if callee == "" {
		return nil, errkind.New(errkind.InvalidInput, "callers", "callee name is required")
	}

	sites := make([]CallSite, 0)
	for _, c := range q.artifacts.Calls {
		if !calleeMatches(c.CalleeName, callee) {
			continue
		}
		sites = append(sites, CallSite{
			CalleeExprPreview: preview(c.CalleeName),
			Citation: Citation{
				FilePath:  c.FilePath,
				StartLine: c.Range.StartLine,
				EndLine:   c.Range.EndLine,
			},
		})
	}
	return sites, nil
}

// calleeMatches reports whether callee expression text refers to name:
// exact equality, a ".name", "::name" or "/name" suffix, or name anywhere
// in the text. The substring rule subsumes the others; the scoped suffix
// rules are kept so that tightening the heuristic later means deleting the
// last rule only.
func calleeMatches(expr, name string) bool {
	switch {
	case expr == name:
		return true
	case strings.HasSuffix(expr, "."+name):
		return true
	case strings.HasSuffix(expr, "::"+name):
		return true
	case strings.HasSuffix(expr, "/"+name):
		return true
	default:
		return strings.Contains(expr, name)
	}
}

// preview cuts s to previewLimit characters and marks the cut.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewLimit]) + "…"
}

// ExplainFile summarizes the file at path: its inventory record, its first
// 25 symbols by (start line, name), and a whole-file citation at line 1.
// It fails with NotFound when path is not in the inventory.
func (q *QueryBuilder) ExplainFile(path string) (*FileStub, error) {
	if path == "" {
		return nil, errkind.New(errkind.InvalidInput, "explain file", "file path is required")
	}
	file, ok := q.artifacts.FileByPath(path)
	if !ok {
		return nil, errkind.Errorf(errkind.NotFound, "explain file", "file not found in snapshot: %s", path)
	}

	var symbols []SymbolRecord
	for _, s := range q.artifacts.Symbols {
		if s.FilePath == path {
			symbols = append(symbols, s)
		}
	}
	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].Range.StartLine != symbols[j].Range.StartLine {
			return symbols[i].Range.StartLine < symbols[j].Range.StartLine
		}
		return symbols[i].Name < symbols[j].Name
	})
	if len(symbols) > topSymbolsLimit {
		symbols = symbols[:topSymbolsLimit]
	}

	top := make([]Definition, 0, len(symbols))
	for _, s := range symbols {
		top = append(top, definitionOf(s))
	}
	return &FileStub{
		File:       file,
		TopSymbols: top,
		Note:       stubNote,
		Citations:  []Citation{{FilePath: path, StartLine: 1, EndLine: 1}},
	}, nil
}
