package lang

import "github.com/jensjohansen/codeknowl/internal/snapshot"

// DefMatcher emits a symbol for nodes of NodeType, named by the text of the
// NameField child. Nodes without that field are skipped.
type DefMatcher struct {
	NodeType  string
	Kind      snapshot.SymbolKind
	NameField string
}

// CallMatcher emits a call record for nodes of NodeType, using the verbatim
// text of the CalleeField child as the callee expression.
type CallMatcher struct {
	NodeType    string
	CalleeField string
}

// Table is the pair of matcher lists for one language.
type Table struct {
	Defs  []DefMatcher
	Calls []CallMatcher
}

// Tables holds the matcher tables keyed by language tag. Adding a language
// means adding an entry here and its extensions and grammar in languages.go.
var Tables = map[string]Table{
	"python": {
		Defs: []DefMatcher{
			{NodeType: "function_definition", Kind: snapshot.Function, NameField: "name"},
			{NodeType: "class_definition", Kind: snapshot.Class, NameField: "name"},
		},
		Calls: []CallMatcher{
			{NodeType: "call", CalleeField: "function"},
		},
	},
	"javascript": jsTable,
	"typescript": jsTable,
	"java": {
		Defs: []DefMatcher{
			{NodeType: "method_declaration", Kind: snapshot.Method, NameField: "name"},
			{NodeType: "class_declaration", Kind: snapshot.Class, NameField: "name"},
		},
		Calls: []CallMatcher{
			// Java invocations carry the bare method name, not the receiver.
			{NodeType: "method_invocation", CalleeField: "name"},
		},
	},
	"go": {
		Defs: []DefMatcher{
			{NodeType: "function_declaration", Kind: snapshot.Function, NameField: "name"},
			{NodeType: "method_declaration", Kind: snapshot.Method, NameField: "name"},
		},
		Calls: []CallMatcher{
			{NodeType: "call_expression", CalleeField: "function"},
		},
	},
}

var jsTable = Table{
	Defs: []DefMatcher{
		{NodeType: "function_declaration", Kind: snapshot.Function, NameField: "name"},
		{NodeType: "class_declaration", Kind: snapshot.Class, NameField: "name"},
		{NodeType: "method_definition", Kind: snapshot.Method, NameField: "name"},
	},
	Calls: []CallMatcher{
		{NodeType: "call_expression", CalleeField: "function"},
	},
}

// Index is a Table keyed by node type for constant-time dispatch during a
// traversal.
type Index struct {
	Defs  map[string]DefMatcher
	Calls map[string]CallMatcher
}

// IndexFor builds the node-type index for lang. Returns (nil, false) for
// languages without a table.
func IndexFor(lang string) (*Index, bool) {
	t, ok := Tables[lang]
	if !ok {
		return nil, false
	}
	idx := &Index{
		Defs:  make(map[string]DefMatcher, len(t.Defs)),
		Calls: make(map[string]CallMatcher, len(t.Calls)),
	}
	for _, d := range t.Defs {
		idx.Defs[d.NodeType] = d
	}
	for _, c := range t.Calls {
		idx.Calls[c.NodeType] = c
	}
	return idx, true
}
