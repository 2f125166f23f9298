// Package config loads settings from defaults, an optional YAML file,
// CODEKNOWL_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jensjohansen/codeknowl/internal/errkind"
	"github.com/jensjohansen/codeknowl/internal/llm"
	"github.com/jensjohansen/codeknowl/internal/logging"
	"github.com/jensjohansen/codeknowl/internal/walk"
)

// EnvPrefix is prepended to every environment override, with "." in keys
// mapped to "_" (llm.base_url -> CODEKNOWL_LLM_BASE_URL).
const EnvPrefix = "CODEKNOWL"

// FileName is the config file looked up in the data directory when no
// explicit file is given.
const FileName = "config.yaml"

// Config is the fully resolved configuration.
type Config struct {
	DataDir string      `mapstructure:"data_dir"`
	Walk    WalkConfig  `mapstructure:"walk"`
	Index   IndexConfig `mapstructure:"index"`
	LLM     llm.Config  `mapstructure:"llm"`
	Log     LogConfig   `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type WalkConfig struct {
	IgnoreDirs       []string `mapstructure:"ignore_dirs"`
	StateDirPrefix   string   `mapstructure:"state_dir_prefix"`
	RespectGitignore bool     `mapstructure:"respect_gitignore"`
}

type IndexConfig struct {
	Workers int `mapstructure:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WalkOptions converts the walk settings for the file walker.
func (c *Config) WalkOptions() walk.Options {
	return walk.Options{
		IgnoreDirs:       append([]string(nil), c.Walk.IgnoreDirs...),
		StateDirPrefix:   c.Walk.StateDirPrefix,
		RespectGitignore: c.Walk.RespectGitignore,
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":   "data_dir",
	"log-level":  "log.level",
	"log-format": "log.format",
	"workers":    "index.workers",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", ".codeknowl")

	v.SetDefault("walk.ignore_dirs", walk.DefaultIgnoreDirs)
	v.SetDefault("walk.state_dir_prefix", walk.DefaultStateDirPrefix)
	v.SetDefault("walk.respect_gitignore", false)

	v.SetDefault("index.workers", 1)

	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", llm.DefaultTimeout)
	v.SetDefault("llm.chat_completions_path", llm.DefaultChatCompletionsPath)
	v.SetDefault("llm.models_path", llm.DefaultModelsPath)
	v.SetDefault("llm.temperature", llm.DefaultTemperature)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load resolves the configuration. configFile, when non-empty, must exist;
// otherwise <data_dir>/config.yaml is read if present. Flags that were set
// on flags take precedence over everything else; flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile == "" {
		candidate := filepath.Join(v.GetString("data_dir"), FileName)
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, errkind.Errorf(errkind.NotFound, "load config", "config file not found: %s", configFile)
			}
			return nil, errkind.Wrap(errkind.InvalidInput, "load config", fmt.Errorf("read %s: %w", configFile, err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, "load config", fmt.Errorf("decode: %w", err))
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings every command depends on. LLM settings are
// checked separately by the commands that talk to a generator.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errkind.New(errkind.InvalidInput, "config", "data_dir must not be empty")
	}
	if c.Index.Workers < 1 {
		return errkind.Errorf(errkind.InvalidInput, "config", "index.workers must be at least 1, got %d", c.Index.Workers)
	}
	if _, err := logging.LevelFromString(c.Log.Level); err != nil {
		return errkind.Wrap(errkind.InvalidInput, "config", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return errkind.Wrap(errkind.InvalidInput, "config", err)
	}
	return nil
}
