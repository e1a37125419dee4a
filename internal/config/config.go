// Package config loads process configuration from environment variables and
// the optional tool-level defaults file (memvault.yaml). Values in the
// defaults file support environment variable expansion via ${VAR} or $VAR.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/memvault/internal/projectcfg"
)

// Config holds all process configuration loaded from environment variables.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Root is the project directory memvault operates on.
	Root string `envconfig:"MEMVAULT_ROOT" default:"."`

	// MetricsAddr serves /metrics, /health and /ready when the serve
	// command runs. Empty disables the listener.
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// DefaultsFile points at an optional memvault.yaml overriding the
	// built-in defaults for new projects.
	DefaultsFile string `envconfig:"MEMVAULT_CONFIG"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}

// fileDefaults mirrors the memvault.yaml layout. Pointer fields distinguish
// "absent" from zero values so the file only overrides what it sets.
type fileDefaults struct {
	Project struct {
		Type string `yaml:"type"`
	} `yaml:"project"`
	Memory struct {
		AutoSummarize        *bool    `yaml:"auto_summarize"`
		SummarizeThresholdKB *int     `yaml:"summarize_threshold_kb"`
		AutoTranslate        *bool    `yaml:"auto_translate"`
		TargetLanguages      []string `yaml:"target_languages"`
		ErrorDetection       *bool    `yaml:"error_detection"`
		AutoRecovery         *bool    `yaml:"auto_recovery"`
		MaxRecoveryAttempts  *int     `yaml:"max_recovery_attempts"`
	} `yaml:"memory"`
}

var envVarPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}

// LoadDefaults reads a memvault.yaml defaults file and overlays it onto the
// built-in system defaults. An empty path returns the system defaults
// unchanged. The default project type (empty when the file does not set one)
// is returned separately.
func LoadDefaults(path string) (projectcfg.Defaults, string, error) {
	d := projectcfg.SystemDefaults()
	if path == "" {
		return d, "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return d, "", fmt.Errorf("defaults: read %s: %w", path, err)
	}
	return loadDefaultsBytes(raw, d, path)
}

// LoadDefaultsBytes parses defaults from bytes (useful for testing).
func LoadDefaultsBytes(data []byte) (projectcfg.Defaults, string, error) {
	return loadDefaultsBytes(data, projectcfg.SystemDefaults(), "inline")
}

func loadDefaultsBytes(raw []byte, d projectcfg.Defaults, origin string) (projectcfg.Defaults, string, error) {
	expanded := expandEnvVars(string(raw))
	var fd fileDefaults
	if err := yaml.Unmarshal([]byte(expanded), &fd); err != nil {
		return d, "", fmt.Errorf("defaults: parse %s: %w", origin, err)
	}
	if fd.Memory.AutoSummarize != nil {
		d.AutoSummarize = *fd.Memory.AutoSummarize
	}
	if fd.Memory.SummarizeThresholdKB != nil {
		d.SummarizeThresholdKB = *fd.Memory.SummarizeThresholdKB
	}
	if fd.Memory.AutoTranslate != nil {
		d.AutoTranslate = *fd.Memory.AutoTranslate
	}
	if fd.Memory.TargetLanguages != nil {
		d.TargetLanguages = fd.Memory.TargetLanguages
	}
	if fd.Memory.ErrorDetection != nil {
		d.ErrorDetection = *fd.Memory.ErrorDetection
	}
	if fd.Memory.AutoRecovery != nil {
		d.AutoRecovery = *fd.Memory.AutoRecovery
	}
	if fd.Memory.MaxRecoveryAttempts != nil {
		d.MaxRecoveryAttempts = *fd.Memory.MaxRecoveryAttempts
	}
	return d, fd.Project.Type, nil
}
