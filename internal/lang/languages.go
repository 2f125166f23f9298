// Package lang maps file extensions to language tags and holds the
// declarative matcher tables that drive symbol and call extraction.
package lang

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Unknown is the tag for files whose extension is not in the registry. Such
// files are inventoried but never extracted.
const Unknown = "unknown"

// extToLanguage maps lowercase file extensions to language tags.
var extToLanguage = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".vue":  "vue",
	".go":   "go",
}

// extToGrammar maps extensions to tree-sitter grammars. TSX shares the
// typescript tag but needs its own grammar for JSX syntax.
// Lazily initialized on first call via sync.Once.
var (
	extToGrammar map[string]*sitter.Language
	grammarsOnce sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		extToGrammar = map[string]*sitter.Language{
			".py":   python.GetLanguage(),
			".js":   javascript.GetLanguage(),
			".jsx":  javascript.GetLanguage(),
			".ts":   ts.GetLanguage(),
			".tsx":  tsx.GetLanguage(),
			".java": java.GetLanguage(),
			".go":   golang.GetLanguage(),
		}
	})
}

// LanguageForFile returns the language tag for path based on its extension,
// compared case-insensitively. Unmapped extensions return Unknown.
func LanguageForFile(path string) string {
	if lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return Unknown
}

// GrammarForFile returns the tree-sitter grammar used to parse path.
// Returns (nil, false) when the file's language is not extracted.
func GrammarForFile(path string) (*sitter.Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := Tables[extToLanguage[ext]]; !ok {
		return nil, false
	}
	initGrammars()
	g, ok := extToGrammar[ext]
	return g, ok
}

// Supported reports whether files tagged lang are extracted.
func Supported(lang string) bool {
	_, ok := Tables[lang]
	return ok
}
