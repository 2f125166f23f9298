package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI in-process with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root, _ := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// gitFixture creates a committed repository with one Python file.
func gitFixture(t *testing.T) string {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte(
		"def parseConfig(path):\n    return open(path)\n\n\ndef main():\n    parseConfig(\"a.yaml\")\n",
	), 0o644))
	for _, args := range [][]string{
		{"init", "-q"},
		{"add", "app.py"},
		{"commit", "-q", "-m", "init"},
	} {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	return dir
}

func registerRepo(t *testing.T, dataDir, path string) string {
	t.Helper()
	out, _, err := execute(t, "--data-dir", dataDir, "repo", "register", path)
	require.NoError(t, err)
	id, ok := decode(t, out)["repo_id"].(string)
	require.True(t, ok, out)
	return id
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("yaml"))
}

func TestRoot_InvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "repo", "list", "--data-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRepoRegisterListStatus(t *testing.T) {
	dataDir := t.TempDir()
	repoDir := t.TempDir()
	id := registerRepo(t, dataDir, repoDir)

	out, _, err := execute(t, "--data-dir", dataDir, "repo", "list")
	require.NoError(t, err)
	var repos []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &repos))
	require.Len(t, repos, 1)
	assert.Equal(t, id, repos[0]["repo_id"])
	assert.Equal(t, repoDir, repos[0]["local_path"])

	out, _, err = execute(t, "--data-dir", dataDir, "repo", "status", id)
	require.NoError(t, err)
	status := decode(t, out)
	assert.Equal(t, id, status["repo_id"])
	assert.Contains(t, status, "latest_index_run")
	assert.Nil(t, status["latest_index_run"])
}

func TestRepoList_EmptyIsArray(t *testing.T) {
	out, _, err := execute(t, "--data-dir", t.TempDir(), "repo", "list")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestErrorEnvelope(t *testing.T) {
	dataDir := t.TempDir()

	out, _, err := execute(t, "--data-dir", dataDir, "repo", "register", filepath.Join(dataDir, "missing"))
	require.Error(t, err)
	env := decode(t, out)
	assert.Equal(t, "repo register", env["command"])
	assert.Equal(t, "not_found", env["kind"])
	assert.NotEmpty(t, env["error"])
}

func TestErrorEnvelope_TextModeGoesToStderr(t *testing.T) {
	out, stderr, err := execute(t, "--format", "text", "--data-dir", t.TempDir(), "repo", "status", "nope")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "Error:")
}

func TestQuery_NeverIndexed(t *testing.T) {
	dataDir := t.TempDir()
	id := registerRepo(t, dataDir, t.TempDir())

	out, _, err := execute(t, "--data-dir", dataDir, "query", "where", id, "main")
	require.Error(t, err)
	env := decode(t, out)
	assert.Equal(t, "query where", env["command"])
	assert.Equal(t, "not_found", env["kind"])
}

func TestRepoIndex_NotAGitRepository(t *testing.T) {
	requireGit(t)
	dataDir := t.TempDir()
	id := registerRepo(t, dataDir, t.TempDir())

	out, _, err := execute(t, "--data-dir", dataDir, "repo", "index", id)
	require.Error(t, err)
	assert.Equal(t, "extraction_failure", decode(t, out)["kind"])

	out, _, err = execute(t, "--data-dir", dataDir, "repo", "status", id)
	require.NoError(t, err)
	run, ok := decode(t, out)["latest_index_run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "failed", run["status"])
}

func TestIndexAndQuery(t *testing.T) {
	dataDir := t.TempDir()
	id := registerRepo(t, dataDir, gitFixture(t))
	metricsFile := filepath.Join(t.TempDir(), "codeknowl.prom")

	out, stderr, err := execute(t, "--data-dir", dataDir, "repo", "index", id, "--workers", "2", "--metrics-textfile", metricsFile)
	require.NoError(t, err, out)
	run := decode(t, out)
	assert.Equal(t, "succeeded", run["status"])
	assert.Regexp(t, `^[0-9a-f]{40,64}$`, run["head_commit"])
	assert.Contains(t, stderr, "Indexed "+id)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "codeknowl_index_runs_total")

	out, _, err = execute(t, "--data-dir", dataDir, "query", "where", id, "parseConfig")
	require.NoError(t, err)
	resp := decode(t, out)
	assert.Equal(t, run["head_commit"], resp["head_commit"])
	results, ok := resp["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	citation := results[0].(map[string]any)["citation"].(map[string]any)
	assert.Equal(t, "app.py", citation["file_path"])
	assert.EqualValues(t, 1, citation["start_line"])
	assert.EqualValues(t, 2, citation["end_line"])

	out, _, err = execute(t, "--data-dir", dataDir, "query", "callers", id, "parseConfig")
	require.NoError(t, err)
	resp = decode(t, out)
	assert.Equal(t, "best_effort", resp["query"].(map[string]any)["mode"])
	assert.Len(t, resp["results"], 1)

	out, _, err = execute(t, "--data-dir", dataDir, "query", "explain", id, "app.py")
	require.NoError(t, err)
	stub := decode(t, out)["result"].(map[string]any)
	assert.Len(t, stub["top_symbols"], 2)

	out, _, err = execute(t, "--data-dir", dataDir, "query", "evidence", id, "Where", "is", "parseConfig", "defined?")
	require.NoError(t, err)
	ev := decode(t, out)["result"].(map[string]any)
	assert.Equal(t, "Where is parseConfig defined?", ev["question"])
	assert.Equal(t, true, ev["best_effort"])
	assert.Contains(t, ev, "where_defined")

	out, _, err = execute(t, "--format", "text", "--data-dir", dataDir, "query", "where", id, "parseConfig")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "app.py")
	assert.Contains(t, out, "1-2")
}

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "test-model", req.Model)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"It is in app.py lines 1-2."}}]}`))
	}))
	defer srv.Close()
	t.Setenv("CODEKNOWL_LLM_BASE_URL", srv.URL)
	t.Setenv("CODEKNOWL_LLM_MODEL", "test-model")

	dataDir := t.TempDir()
	id := registerRepo(t, dataDir, gitFixture(t))
	_, _, err := execute(t, "--data-dir", dataDir, "repo", "index", id)
	require.NoError(t, err)

	out, _, err := execute(t, "--data-dir", dataDir, "ask", id, "Where is parseConfig defined?")
	require.NoError(t, err)
	resp := decode(t, out)
	assert.Equal(t, "It is in app.py lines 1-2.", resp["answer"])
	citations, ok := resp["citations"].([]any)
	require.True(t, ok)
	assert.Len(t, citations, 1)
}

func TestAsk_NoLLMConfigured(t *testing.T) {
	t.Setenv("CODEKNOWL_LLM_BASE_URL", "")
	t.Setenv("CODEKNOWL_LLM_MODEL", "")
	dataDir := t.TempDir()
	id := registerRepo(t, dataDir, t.TempDir())

	out, _, err := execute(t, "--data-dir", dataDir, "ask", id, "anything")
	require.Error(t, err)
	assert.Equal(t, "invalid_input", decode(t, out)["kind"])
}

func TestLLMModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/models", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"b-model"},{"id":"a-model"}]}`))
	}))
	defer srv.Close()
	t.Setenv("CODEKNOWL_LLM_BASE_URL", srv.URL)
	t.Setenv("CODEKNOWL_LLM_MODEL", "a-model")

	out, _, err := execute(t, "--data-dir", t.TempDir(), "llm", "models")
	require.NoError(t, err)
	var models []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &models))
	assert.Len(t, models, 2)

	out, _, err = execute(t, "--format", "text", "--data-dir", t.TempDir(), "llm", "models")
	require.NoError(t, err)
	assert.Equal(t, "a-model\nb-model\n", out)
}
