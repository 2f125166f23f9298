// Package snapshot defines the citeable record types produced by an index run
// and persists them as commit-addressed, immutable JSON documents.
//
// A snapshot lives under <root>/artifacts/<repo_id>/<head_commit>/ and holds
// files.json, symbols.json, calls.json and manifest.json. Documents are
// rendered with sorted keys and two-space indentation so that repeated runs
// over unchanged input are byte-identical.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jensjohansen/codeknowl/internal/errkind"
)

// SchemaVersion is written to every manifest. Loaders reject newer versions.
const SchemaVersion = 1

const (
	FilesDoc    = "files.json"
	SymbolsDoc  = "symbols.json"
	CallsDoc    = "calls.json"
	ManifestDoc = "manifest.json"
)

// Dir returns the directory holding the snapshot for (repoID, headCommit).
func Dir(root, repoID, headCommit string) string {
	return filepath.Join(root, "artifacts", repoID, headCommit)
}

// validateKey rejects address components that could escape the artifacts
// tree or collide with in-flight temporary directories.
func validateKey(op, repoID, headCommit string) error {
	for _, part := range []string{repoID, headCommit} {
		if part == "" || strings.HasPrefix(part, ".") || strings.ContainsAny(part, `/\`) {
			return errkind.Errorf(errkind.InvalidInput, op, "invalid snapshot key %q", part)
		}
	}
	return nil
}

// Write renders all documents into a temporary sibling directory and then
// publishes it under Dir(root, repoID, headCommit) with a rename, so readers
// never observe a partially written snapshot. An existing snapshot for the
// same commit is swapped out and removed.
func Write(root, repoID, headCommit string, a *Artifacts) (string, error) {
	if err := validateKey("snapshot write", repoID, headCommit); err != nil {
		return "", err
	}

	parent := filepath.Join(root, "artifacts", repoID)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("snapshot write: create %s: %w", parent, err)
	}

	tmp := filepath.Join(parent, ".tmp-"+uuid.NewString())
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return "", fmt.Errorf("snapshot write: create temp dir: %w", err)
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(tmp)
		}
	}()

	files, symbols, calls := a.Files, a.Symbols, a.Calls
	if files == nil {
		files = []FileRecord{}
	}
	if symbols == nil {
		symbols = []SymbolRecord{}
	}
	if calls == nil {
		calls = []CallRecord{}
	}
	manifest := Manifest{
		SchemaVersion: SchemaVersion,
		RepoID:        repoID,
		HeadCommit:    headCommit,
		FileCount:     len(files),
		SymbolCount:   len(symbols),
		CallCount:     len(calls),
	}

	docs := []struct {
		name string
		v    any
	}{
		{FilesDoc, files},
		{SymbolsDoc, symbols},
		{CallsDoc, calls},
		{ManifestDoc, manifest},
	}
	for _, d := range docs {
		if err := writeDoc(filepath.Join(tmp, d.name), d.v); err != nil {
			return "", fmt.Errorf("snapshot write: %s: %w", d.name, err)
		}
	}
	syncDir(tmp)

	final := filepath.Join(parent, headCommit)
	if err := publish(parent, tmp, final); err != nil {
		return "", fmt.Errorf("snapshot write: publish: %w", err)
	}
	published = true
	syncDir(parent)
	return final, nil
}

// publish renames tmp into place at final. When final already exists it is
// moved aside first, so between the two renames the address is missing and
// a concurrent Load of the same commit reports NotFound. Only re-indexing an
// unchanged commit hits this; a reader racing it may retry.
func publish(parent, tmp, final string) error {
	if _, err := os.Stat(final); errors.Is(err, fs.ErrNotExist) {
		return os.Rename(tmp, final)
	}

	aside := filepath.Join(parent, ".old-"+uuid.NewString())
	if err := os.Rename(final, aside); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		// Put the previous snapshot back so the address stays readable.
		_ = os.Rename(aside, final)
		return err
	}
	return os.RemoveAll(aside)
}

// Marshal renders v as sorted-key, two-space indented JSON with a trailing
// newline.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// Round-trip through generic values so object keys come out sorted
	// regardless of struct field order.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeDoc(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// syncDir flushes directory entries where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// Load reads the three record documents for (repoID, headCommit). It never
// re-derives artifacts from source; any missing document is NotFound.
func Load(root, repoID, headCommit string) (*Artifacts, error) {
	if err := validateKey("snapshot load", repoID, headCommit); err != nil {
		return nil, err
	}
	dir := Dir(root, repoID, headCommit)

	if _, err := ReadManifest(root, repoID, headCommit); err != nil && !errkind.Is(err, errkind.NotFound) {
		return nil, err
	}

	a := &Artifacts{}
	if err := readDoc(filepath.Join(dir, FilesDoc), &a.Files); err != nil {
		return nil, err
	}
	if err := readDoc(filepath.Join(dir, SymbolsDoc), &a.Symbols); err != nil {
		return nil, err
	}
	if err := readDoc(filepath.Join(dir, CallsDoc), &a.Calls); err != nil {
		return nil, err
	}
	return a, nil
}

// ReadManifest returns the snapshot manifest. Snapshots written before the
// manifest existed report NotFound.
func ReadManifest(root, repoID, headCommit string) (*Manifest, error) {
	if err := validateKey("snapshot manifest", repoID, headCommit); err != nil {
		return nil, err
	}
	var m Manifest
	if err := readDoc(filepath.Join(Dir(root, repoID, headCommit), ManifestDoc), &m); err != nil {
		return nil, err
	}
	if m.SchemaVersion > SchemaVersion {
		return nil, errkind.Errorf(errkind.InvalidInput, "snapshot manifest",
			"unsupported schema version %d (max %d)", m.SchemaVersion, SchemaVersion)
	}
	return &m, nil
}

func readDoc(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return errkind.Errorf(errkind.NotFound, "snapshot load", "missing document %s", path)
	}
	if err != nil {
		return fmt.Errorf("snapshot load: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("snapshot load: decode %s: %w", path, err)
	}
	return nil
}
