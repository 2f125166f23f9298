package codeknowl

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evidenceFixture() *Artifacts {
	return &Artifacts{
		Files: []FileRecord{
			{Path: "pkg/config.py", Language: "python", SizeBytes: 120},
			{Path: "main.py", Language: "python", SizeBytes: 80},
		},
		Symbols: []SymbolRecord{
			sym("parseConfig", Function, "pkg/config.py", 3, 9),
			sym("Loader", Class, "pkg/config.py", 12, 30),
			sym("main", Function, "main.py", 1, 6),
		},
		Calls: []CallRecord{
			call("parseConfig", "main.py", 2),
			call("loader.parseConfig", "main.py", 4),
			call("print", "main.py", 5),
		},
	}
}

func TestEvidence_WhereDefined(t *testing.T) {
	t.Parallel()
	q := NewQueryBuilder(evidenceFixture())

	ev, citations, err := q.Evidence("Where is parseConfig defined?")
	require.NoError(t, err)

	direct, err := q.WhereDefined("parseConfig")
	require.NoError(t, err)

	assert.Equal(t, direct, ev.WhereDefined)
	assert.Nil(t, ev.CallSites)
	assert.Nil(t, ev.FileStub)
	assert.Empty(t, ev.Hint)
	assert.Equal(t, []Citation{direct[0].Citation}, citations)
}

func TestEvidence_DefinitionKeyword(t *testing.T) {
	t.Parallel()
	ev, _, err := NewQueryBuilder(evidenceFixture()).Evidence("where can I find the definition of Loader")
	require.NoError(t, err)
	require.Len(t, ev.WhereDefined, 1)
	assert.Equal(t, "Loader", ev.WhereDefined[0].Name)
}

func TestEvidence_WhereDefinedNoMatchIsEmptyNotAbsent(t *testing.T) {
	t.Parallel()
	ev, citations, err := NewQueryBuilder(evidenceFixture()).Evidence("Where is missingThing defined?")
	require.NoError(t, err)
	assert.NotNil(t, ev.WhereDefined)
	assert.Empty(t, ev.WhereDefined)
	assert.Empty(t, citations)
	assert.Empty(t, ev.Hint)
}

func TestEvidence_CallSites(t *testing.T) {
	t.Parallel()
	q := NewQueryBuilder(evidenceFixture())

	ev, citations, err := q.Evidence("who calls parseConfig")
	require.NoError(t, err)
	assert.Nil(t, ev.WhereDefined)
	require.Len(t, ev.CallSites, 2)
	assert.Equal(t, "parseConfig", ev.CallSites[0].CalleeExprPreview)
	assert.Equal(t, "loader.parseConfig", ev.CallSites[1].CalleeExprPreview)
	assert.Len(t, citations, 2)
}

func TestEvidence_CallSitesCapped(t *testing.T) {
	t.Parallel()
	a := &Artifacts{}
	for i := 1; i <= 80; i++ {
		a.Calls = append(a.Calls, call("send", "net.py", i))
	}

	ev, citations, err := NewQueryBuilder(a).Evidence("what calls send")
	require.NoError(t, err)
	assert.Len(t, ev.CallSites, 50)
	assert.Len(t, citations, 50)
	assert.Equal(t, 50, ev.CallSites[49].Citation.StartLine)
}

func TestEvidence_FileStub(t *testing.T) {
	t.Parallel()
	q := NewQueryBuilder(evidenceFixture())

	ev, citations, err := q.Evidence("Explain pkg/config.py please")
	require.NoError(t, err)
	require.NotNil(t, ev.File)
	assert.Equal(t, "pkg/config.py", ev.File.Path)
	require.NotNil(t, ev.FileStub)
	assert.Len(t, ev.FileStub.TopSymbols, 2)
	assert.Equal(t, []Citation{{FilePath: "pkg/config.py", StartLine: 1, EndLine: 1}}, citations)
	assert.Empty(t, ev.Hint)
}

func TestEvidence_UnknownPathIgnored(t *testing.T) {
	t.Parallel()
	ev, citations, err := NewQueryBuilder(evidenceFixture()).Evidence("Explain other/thing.go")
	require.NoError(t, err)
	assert.Nil(t, ev.File)
	assert.Nil(t, ev.FileStub)
	assert.Empty(t, citations)
	assert.Equal(t, noEvidenceHint, ev.Hint)
}

// A question naming a file and asking about callers fires both heuristics,
// and the file's extension is never mistaken for the symbol.
func TestEvidence_CombinedHeuristics(t *testing.T) {
	t.Parallel()
	ev, citations, err := NewQueryBuilder(evidenceFixture()).Evidence("in main.py what calls print")
	require.NoError(t, err)
	require.NotNil(t, ev.FileStub)
	require.Len(t, ev.CallSites, 1)
	assert.Equal(t, "print", ev.CallSites[0].CalleeExprPreview)
	assert.Equal(t, []Citation{
		{FilePath: "main.py", StartLine: 1, EndLine: 1},
		{FilePath: "main.py", StartLine: 5, EndLine: 5},
	}, citations)
}

func TestEvidence_DottedReference(t *testing.T) {
	t.Parallel()
	a := &Artifacts{
		Symbols: []SymbolRecord{sym("load", Function, "config.py", 4, 8)},
		Calls: []CallRecord{
			call("obj.save", "store.py", 7),
			call("print", "store.py", 9),
		},
	}
	q := NewQueryBuilder(a)

	ev, citations, err := q.Evidence("Who calls obj.save?")
	require.NoError(t, err)
	assert.Nil(t, ev.File)
	require.Len(t, ev.CallSites, 1)
	assert.Equal(t, "obj.save", ev.CallSites[0].CalleeExprPreview)
	assert.Equal(t, []Citation{{FilePath: "store.py", StartLine: 7, EndLine: 7}}, citations)
	assert.Empty(t, ev.Hint)

	ev, _, err = q.Evidence("Where is Config.load defined?")
	require.NoError(t, err)
	require.Len(t, ev.WhereDefined, 1)
	assert.Equal(t, "config.py", ev.WhereDefined[0].Citation.FilePath)
}

func TestEvidence_SymbolNamedLikeQuestionWord(t *testing.T) {
	t.Parallel()
	a := &Artifacts{
		Symbols: []SymbolRecord{
			sym("find", Function, "a.py", 1, 3),
			sym("show", Function, "a.py", 5, 7),
		},
		Calls: []CallRecord{
			call("find", "b.py", 2),
			call("show", "b.py", 4),
		},
	}
	q := NewQueryBuilder(a)

	ev, _, err := q.Evidence("Where is find defined?")
	require.NoError(t, err)
	require.Len(t, ev.WhereDefined, 1)
	assert.Equal(t, 1, ev.WhereDefined[0].Citation.StartLine)

	ev, _, err = q.Evidence("What calls show")
	require.NoError(t, err)
	require.Len(t, ev.CallSites, 1)
	assert.Equal(t, 4, ev.CallSites[0].Citation.StartLine)

	ev, _, err = q.Evidence("Who calls find")
	require.NoError(t, err)
	require.Len(t, ev.CallSites, 1)
	assert.Equal(t, "b.py", ev.CallSites[0].Citation.FilePath)
}

func TestEvidence_Hint(t *testing.T) {
	t.Parallel()
	ev, citations, err := NewQueryBuilder(evidenceFixture()).Evidence("tell me something interesting")
	require.NoError(t, err)
	assert.Equal(t, noEvidenceHint, ev.Hint)
	assert.Empty(t, citations)
}

func TestEvidence_EmptyQuestion(t *testing.T) {
	t.Parallel()
	_, _, err := NewQueryBuilder(evidenceFixture()).Evidence("   ")
	assert.True(t, IsKind(err, InvalidInput))
}

func TestEvidence_JSONKeys(t *testing.T) {
	t.Parallel()
	q := NewQueryBuilder(evidenceFixture())

	keysOf := func(question string) []string {
		ev, _, err := q.Evidence(question)
		require.NoError(t, err)
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &m))
		assert.JSONEq(t, "true", string(m["best_effort"]))
		var keys []string
		for k := range m {
			keys = append(keys, k)
		}
		return keys
	}

	assert.ElementsMatch(t, []string{"best_effort", "question", "where_defined"},
		keysOf("Where is parseConfig defined?"))
	assert.ElementsMatch(t, []string{"best_effort", "question", "call_sites"},
		keysOf("who calls parseConfig"))
	assert.ElementsMatch(t, []string{"best_effort", "question", "file", "file_stub"},
		keysOf("describe main.py"))
	assert.ElementsMatch(t, []string{"best_effort", "question", "hint"},
		keysOf("hello there"))
}

func TestIdentifierCandidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		question, path, want string
	}{
		{"Where is parseConfig defined?", "", "parseConfig"},
		{"what calls send_request", "", "send_request"},
		{"who calls helper in util.py", "util.py", "helper"},
		{"where is it defined", "", "defined"},
		{"Who calls obj.save?", "", "save"},
		{"Where is Config.load defined?", "", "load"},
		{"Where is find defined?", "", "find"},
		{"What calls show", "", "show"},
		{"who calls call", "", "call"},
		{"", "", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, identifierCandidate(tc.question, tc.path), tc.question)
	}
}

func TestPathCandidate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "src/app/main.py", pathCandidate("explain src/app/main.py now"))
	assert.Equal(t, "a-b_c.tsx", pathCandidate("look at a-b_c.tsx"))
	assert.Empty(t, pathCandidate("no file here"))
}

func TestDedupeCitations(t *testing.T) {
	t.Parallel()
	in := []Citation{
		{FilePath: "a.py", StartLine: 1, EndLine: 1},
		{FilePath: "b.py", StartLine: 2, EndLine: 3},
		{FilePath: "a.py", StartLine: 1, EndLine: 1},
		{FilePath: "a.py", StartLine: 1, EndLine: 2},
	}
	assert.Equal(t, []Citation{in[0], in[1], in[3]}, dedupeCitations(in))
	assert.Empty(t, dedupeCitations(nil))
}

func ExampleQueryBuilder_Evidence() {
	q := NewQueryBuilder(&Artifacts{
		Symbols: []SymbolRecord{{
			SymbolID: "abc",
			Kind:     Function,
			Name:     "parseConfig",
			FilePath: "config.py",
			Range:    SourceRange{StartLine: 3, StartCol: 1, EndLine: 9, EndCol: 1},
		}},
	})
	_, citations, _ := q.Evidence("Where is parseConfig defined?")
	fmt.Println(citations)
	// Output: [{config.py 3 9}]
}
