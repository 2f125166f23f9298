package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jensjohansen/codeknowl/internal/errkind"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestHeadCommit(t *testing.T) {
	t.Parallel()
	requireGit(t)
	dir := t.TempDir()
	git(t, dir, "init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0o644))
	git(t, dir, "add", "a.py")
	git(t, dir, "commit", "-q", "-m", "init")

	head, err := HeadCommit(context.Background(), dir)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{40,64}$`), head)
}

func TestHeadCommit_NotARepository(t *testing.T) {
	t.Parallel()
	requireGit(t)
	_, err := HeadCommit(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.ExtractionFailure))
}

func TestHeadCommit_NoCommits(t *testing.T) {
	t.Parallel()
	requireGit(t)
	dir := t.TempDir()
	git(t, dir, "init", "-q")

	_, err := HeadCommit(context.Background(), dir)
	assert.True(t, errkind.Is(err, errkind.ExtractionFailure))
}
