// Package walk builds the sorted file inventory of a repository snapshot.
package walk

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jensjohansen/codeknowl/internal/lang"
	"github.com/jensjohansen/codeknowl/internal/logging"
	"github.com/jensjohansen/codeknowl/internal/snapshot"
)

// DefaultIgnoreDirs lists directory names excluded from every walk:
// version-control metadata and common dependency or build output.
var DefaultIgnoreDirs = []string{
	".git",
	".venv",
	"venv",
	"node_modules",
	"dist",
	"build",
	"target",
}

// DefaultStateDirPrefix is the prefix of the tool's own local state directory.
const DefaultStateDirPrefix = ".codeknowl"

// Options configures a Walker. Nothing is implied: callers pass the ignore
// set and state prefix explicitly.
type Options struct {
	// IgnoreDirs are directory base names that are never descended into.
	IgnoreDirs []string
	// StateDirPrefix excludes any directory or file whose name starts with it.
	// Empty disables the check.
	StateDirPrefix string
	// RespectGitignore additionally filters paths matched by the root
	// .gitignore file.
	RespectGitignore bool
	Logger           *slog.Logger
}

// DefaultOptions returns the ignore set and state prefix used by the CLI.
func DefaultOptions() Options {
	return Options{
		IgnoreDirs:     append([]string(nil), DefaultIgnoreDirs...),
		StateDirPrefix: DefaultStateDirPrefix,
	}
}

// Walker enumerates regular files under a repository root.
type Walker struct {
	ignoreDirs       map[string]struct{}
	statePrefix      string
	respectGitignore bool
	logger           *slog.Logger
}

// New creates a Walker from opts.
func New(opts Options) *Walker {
	w := &Walker{
		ignoreDirs:       make(map[string]struct{}, len(opts.IgnoreDirs)),
		statePrefix:      opts.StateDirPrefix,
		respectGitignore: opts.RespectGitignore,
		logger:           opts.Logger,
	}
	for _, d := range opts.IgnoreDirs {
		w.ignoreDirs[d] = struct{}{}
	}
	if w.logger == nil {
		w.logger = logging.NewDiscard()
	}
	return w
}

// Walk returns every regular file under root as a FileRecord with a
// forward-slash, repo-relative path, sorted by path.
//
// Symbolic links are never followed, so cyclic links cannot loop the walk.
// Unreadable subdirectories and files whose size cannot be read are skipped;
// only a failure on root itself aborts the walk.
func (w *Walker) Walk(root string) ([]snapshot.FileRecord, error) {
	// A symlinked root is resolved once; links below it are not followed.
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("walk: resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("walk: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("walk: not a directory: %s", root)
	}

	var gi *ignore.GitIgnore
	if w.respectGitignore {
		gi = loadGitignore(root)
	}

	var records []snapshot.FileRecord
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Debug("walk: skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if w.skipDir(name) {
				return filepath.SkipDir
			}
			if gi != nil && gi.MatchesPath(relSlash(root, path)+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks, sockets, devices and pipes are not regular files.
		if !d.Type().IsRegular() {
			return nil
		}
		if w.statePrefix != "" && strings.HasPrefix(name, w.statePrefix) {
			return nil
		}

		rel := relSlash(root, path)
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			w.logger.Debug("walk: skipping file without size", "path", rel, "error", err)
			return nil
		}

		records = append(records, snapshot.FileRecord{
			Path:      rel,
			Language:  lang.LanguageForFile(name),
			SizeBytes: fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})
	return records, nil
}

func (w *Walker) skipDir(name string) bool {
	if _, skip := w.ignoreDirs[name]; skip {
		return true
	}
	return w.statePrefix != "" && strings.HasPrefix(name, w.statePrefix)
}

func relSlash(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
