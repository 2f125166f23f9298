package codeknowl

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jensjohansen/codeknowl/internal/errkind"
)

const (
	// callSitesLimit caps the call sites attached to an evidence bundle.
	callSitesLimit = 50
	noEvidenceHint = "No specific evidence matched the question; try including a symbol name or file path."
)

var (
	pathPattern       = regexp.MustCompile(`[\w\-./]+\.[a-zA-Z0-9]{1,6}`)
	identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// questionWords are skipped when picking the identifier a question is about,
// so "Where is parseConfig defined?" asks about parseConfig, not "defined".
// Only intent keywords and filler are listed; words that also name symbols,
// such as find or show, stay candidates.
var questionWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "by": {}, "call": {},
	"called": {}, "caller": {}, "callers": {}, "calling": {}, "calls": {},
	"declared": {}, "defined": {}, "definition": {}, "defines": {}, "do": {},
	"does": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "me": {}, "of": {}, "on": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "what": {}, "where": {}, "which": {}, "who": {},
}

// EvidenceFile names the file a question mentioned.
type EvidenceFile struct {
	Path string `json:"path"`
}

// Evidence is the best-effort bundle assembled from a free-text question.
// A nil WhereDefined or CallSites means that heuristic did not fire; an empty
// non-nil slice means it fired and found nothing.
type Evidence struct {
	Question     string
	File         *EvidenceFile
	FileStub     *FileStub
	WhereDefined []Definition
	CallSites    []CallSite
	Hint         string
}

// MarshalJSON renders only the keys whose heuristics fired, with best_effort
// always true. Keys are emitted in sorted order.
func (e *Evidence) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"question":    e.Question,
		"best_effort": true,
	}
	if e.File != nil {
		m["file"] = e.File
	}
	if e.FileStub != nil {
		m["file_stub"] = e.FileStub
	}
	if e.WhereDefined != nil {
		m["where_defined"] = e.WhereDefined
	}
	if e.CallSites != nil {
		m["call_sites"] = e.CallSites
	}
	if e.Hint != "" {
		m["hint"] = e.Hint
	}
	return json.Marshal(m)
}

// Evidence applies three independent heuristics to question and returns the
// bundle with its deduplicated citations:
//
//  1. A path-like token naming a file in the inventory attaches ExplainFile.
//  2. "where" plus "defined" or "definition" attaches WhereDefined for the
//     identifier the question is about.
//  3. "call" attaches up to 50 Callers results for that identifier.
//
// When none fires the bundle carries a hint asking for a more specific
// question.
func (q *QueryBuilder) Evidence(question string) (*Evidence, []Citation, error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil, errkind.New(errkind.InvalidInput, "evidence", "question is required")
	}

	ev := &Evidence{Question: question}
	var citations []Citation

	path := pathCandidate(question)
	if path != "" {
		if _, ok := q.artifacts.FileByPath(path); ok {
			stub, err := q.ExplainFile(path)
			if err != nil {
				return nil, nil, err
			}
			ev.File = &EvidenceFile{Path: path}
			ev.FileStub = stub
			citations = append(citations, stub.Citations...)
		} else {
			// Not a known file; often a dotted reference such as obj.save.
			path = ""
		}
	}

	lower := strings.ToLower(question)
	name := identifierCandidate(question, path)

	if strings.Contains(lower, "where") &&
		(strings.Contains(lower, "defined") || strings.Contains(lower, "definition")) && name != "" {
		defs, err := q.WhereDefined(name)
		if err != nil {
			return nil, nil, err
		}
		ev.WhereDefined = defs
		for _, d := range defs {
			citations = append(citations, d.Citation)
		}
	}

	if strings.Contains(lower, "call") && name != "" {
		sites, err := q.Callers(name)
		if err != nil {
			return nil, nil, err
		}
		if len(sites) > callSitesLimit {
			sites = sites[:callSitesLimit]
		}
		ev.CallSites = sites
		for _, s := range sites {
			citations = append(citations, s.Citation)
		}
	}

	if ev.FileStub == nil && ev.WhereDefined == nil && ev.CallSites == nil {
		ev.Hint = noEvidenceHint
	}
	return ev, dedupeCitations(citations), nil
}

// pathCandidate returns the first path-like token of question, or "".
func pathCandidate(question string) string {
	return pathPattern.FindString(question)
}

// identifierCandidate returns the last identifier-like token of question
// that is not a question word, or the last token when every token is one.
// Text of path, the matched file, is ignored so its extension is never taken
// for a symbol name.
func identifierCandidate(question, path string) string {
	if path != "" {
		question = strings.Replace(question, path, " ", 1)
	}
	tokens := identifierPattern.FindAllString(question, -1)
	for i := len(tokens) - 1; i >= 0; i-- {
		if _, skip := questionWords[strings.ToLower(tokens[i])]; !skip {
			return tokens[i]
		}
	}
	if len(tokens) > 0 {
		return tokens[len(tokens)-1]
	}
	return ""
}

type citationKey struct {
	path       string
	start, end int
}

// dedupeCitations drops repeated (file, start line, end line) spans,
// keeping first-seen order.
func dedupeCitations(citations []Citation) []Citation {
	seen := make(map[citationKey]int, len(citations))
	out := make([]Citation, 0, len(citations))
	for _, c := range citations {
		k := citationKey{c.FilePath, c.StartLine, c.EndLine}
		if i, ok := seen[k]; ok {
			out[i] = c
			continue
		}
		seen[k] = len(out)
		out = append(out, c)
	}
	return out
}
