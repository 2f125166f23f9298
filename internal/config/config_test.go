package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jensjohansen/codeknowl/internal/errkind"
	"github.com/jensjohansen/codeknowl/internal/walk"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ".codeknowl", cfg.DataDir)
	assert.Equal(t, walk.DefaultIgnoreDirs, cfg.Walk.IgnoreDirs)
	assert.Equal(t, ".codeknowl", cfg.Walk.StateDirPrefix)
	assert.False(t, cfg.Walk.RespectGitignore)
	assert.Equal(t, 1, cfg.Index.Workers)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "/api/v1/chat/completions", cfg.LLM.ChatCompletionsPath)
	assert.Equal(t, "/api/v1/models", cfg.LLM.ModelsPath)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.File)
}

func TestLoad_FileInDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, filepath.Join(dir, ".codeknowl"), `
walk:
  respect_gitignore: true
  ignore_dirs: [vendor, .git]
index:
  workers: 4
llm:
  base_url: http://localhost:8000
  model: qwen
  timeout: 15s
`)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.True(t, cfg.Walk.RespectGitignore)
	assert.Equal(t, []string{"vendor", ".git"}, cfg.Walk.IgnoreDirs)
	assert.Equal(t, 4, cfg.Index.Workers)
	assert.Equal(t, "http://localhost:8000", cfg.LLM.BaseURL)
	assert.Equal(t, "qwen", cfg.LLM.Model)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.NotEmpty(t, cfg.File)
	require.NoError(t, cfg.LLM.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "llm:\n  model: from-file\n")
	t.Setenv("CODEKNOWL_LLM_MODEL", "from-env")
	t.Setenv("CODEKNOWL_LLM_BASE_URL", "http://gen:9000")
	t.Setenv("CODEKNOWL_LOG_LEVEL", "debug")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, "http://gen:9000", cfg.LLM.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CODEKNOWL_DATA_DIR", "/from/env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("data-dir", ".codeknowl", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--data-dir", "/from/flag"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_UnsetFlagDoesNotMaskEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CODEKNOWL_DATA_DIR", "/from/env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("data-dir", ".codeknowl", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataDir)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"workers":    "index:\n  workers: 0\n",
		"log level":  "log:\n  level: loud\n",
		"log format": "log:\n  format: xml\n",
		"bad yaml":   "index: [\n",
	} {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path, nil)
		assert.True(t, errkind.Is(err, errkind.InvalidInput), name)
	}
}

func TestWalkOptions(t *testing.T) {
	cfg := &Config{Walk: WalkConfig{IgnoreDirs: []string{"vendor"}, StateDirPrefix: ".state", RespectGitignore: true}}
	opts := cfg.WalkOptions()
	assert.Equal(t, []string{"vendor"}, opts.IgnoreDirs)
	assert.Equal(t, ".state", opts.StateDirPrefix)
	assert.True(t, opts.RespectGitignore)
}
