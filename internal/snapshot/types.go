package snapshot

// SymbolKind is the syntactic kind of a recorded definition.
type SymbolKind string

const (
	Function SymbolKind = "function"
	Class    SymbolKind = "class"
	Method   SymbolKind = "method"
)

// SourceRange is a 1-based span mirroring the parser's node boundaries.
// Start is inclusive; End is the parser's end point shifted by one.
type SourceRange struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

type FileRecord struct {
	Path      string `json:"path"`
	Language  string `json:"language"`
	SizeBytes int64  `json:"size_bytes"`
}

type SymbolRecord struct {
	SymbolID string      `json:"symbol_id"`
	Kind     SymbolKind  `json:"kind"`
	Name     string      `json:"name"`
	FilePath string      `json:"file_path"`
	Range    SourceRange `json:"range"`
}

// CallRecord is one call-expression occurrence. CalleeName is the verbatim
// source text of the callee expression; it is never resolved or truncated.
// CallerSymbolID is always empty: calls are not attributed to an enclosing
// definition.
type CallRecord struct {
	CallerSymbolID string      `json:"caller_symbol_id"`
	CalleeName     string      `json:"callee_name"`
	FilePath       string      `json:"file_path"`
	Range          SourceRange `json:"range"`
}

// Manifest describes a published snapshot.
type Manifest struct {
	SchemaVersion int    `json:"schema_version"`
	RepoID        string `json:"repo_id"`
	HeadCommit    string `json:"head_commit"`
	FileCount     int    `json:"file_count"`
	SymbolCount   int    `json:"symbol_count"`
	CallCount     int    `json:"call_count"`
}

// Artifacts is the in-memory bundle loaded verbatim from one snapshot.
type Artifacts struct {
	Files   []FileRecord   `json:"files"`
	Symbols []SymbolRecord `json:"symbols"`
	Calls   []CallRecord   `json:"calls"`
}

// FileByPath returns the inventory record for an exact repo-relative path.
func (a *Artifacts) FileByPath(path string) (FileRecord, bool) {
	for _, f := range a.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileRecord{}, false
}
