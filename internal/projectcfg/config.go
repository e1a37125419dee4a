// Package projectcfg implements the typed project configuration store backed
// by project_config.json.
package projectcfg

import (
	"fmt"
	"time"

	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

// Valid project types.
const (
	TypeVideo     = "video"
	TypeScript    = "script"
	TypeCreative  = "creative"
	TypeTechnical = "technical"
)

// ValidProjectTypes lists the accepted project_type values.
var ValidProjectTypes = []string{TypeVideo, TypeScript, TypeCreative, TypeTechnical}

// MemoryConfig is the memory-system sub-configuration.
type MemoryConfig struct {
	AutoSummarize        bool     `json:"auto_summarize"`
	SummarizeThresholdKB int      `json:"summarize_threshold_kb"`
	AutoTranslate        bool     `json:"auto_translate"`
	TargetLanguages      []string `json:"target_languages"`
	ErrorDetection       bool     `json:"error_detection"`
	AutoRecovery         bool     `json:"auto_recovery"`
	MaxRecoveryAttempts  int      `json:"max_recovery_attempts"`
}

// ProjectConfig is the persisted project configuration document.
type ProjectConfig struct {
	SchemaVersion string       `json:"schema_version"`
	ProjectName   string       `json:"project_name"`
	ProjectType   string       `json:"project_type"`
	CreatedAt     string       `json:"created_at"`
	Objectives    []string     `json:"objectives"`
	MemoryConfig  MemoryConfig `json:"memory_config"`
}

// Defaults are the system defaults applied by CreateDefaultConfig. They can
// be overridden by the tool-level memvault.yaml defaults file.
type Defaults struct {
	AutoSummarize        bool
	SummarizeThresholdKB int
	AutoTranslate        bool
	TargetLanguages      []string
	ErrorDetection       bool
	AutoRecovery         bool
	MaxRecoveryAttempts  int
}

// SystemDefaults returns the built-in memory-system defaults.
func SystemDefaults() Defaults {
	return Defaults{
		AutoSummarize:        true,
		SummarizeThresholdKB: 50,
		AutoTranslate:        false,
		TargetLanguages:      nil,
		ErrorDetection:       true,
		AutoRecovery:         true,
		MaxRecoveryAttempts:  3,
	}
}

// CreateDefaultConfig produces a schema-complete config for a new project.
func CreateDefaultConfig(name, projectType string, objectives []string, d Defaults) (*ProjectConfig, error) {
	if name == "" {
		return nil, fmt.Errorf("project name must not be empty: %w", errdef.ErrInvalidInput)
	}
	if !validProjectType(projectType) {
		return nil, fmt.Errorf("invalid project type %q: %w", projectType, errdef.ErrInvalidInput)
	}
	if err := validateMemoryConfig(d.SummarizeThresholdKB, d.MaxRecoveryAttempts); err != nil {
		return nil, err
	}
	if objectives == nil {
		objectives = []string{}
	}
	langs := d.TargetLanguages
	if langs == nil {
		langs = []string{}
	}
	return &ProjectConfig{
		SchemaVersion: layout.SchemaVersion,
		ProjectName:   name,
		ProjectType:   projectType,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Objectives:    objectives,
		MemoryConfig: MemoryConfig{
			AutoSummarize:        d.AutoSummarize,
			SummarizeThresholdKB: d.SummarizeThresholdKB,
			AutoTranslate:        d.AutoTranslate,
			TargetLanguages:      langs,
			ErrorDetection:       d.ErrorDetection,
			AutoRecovery:         d.AutoRecovery,
			MaxRecoveryAttempts:  d.MaxRecoveryAttempts,
		},
	}, nil
}

func validProjectType(t string) bool {
	for _, v := range ValidProjectTypes {
		if t == v {
			return true
		}
	}
	return false
}

func validateMemoryConfig(thresholdKB, maxAttempts int) error {
	if thresholdKB < 0 {
		return fmt.Errorf("summarize_threshold_kb must be non-negative, got %d: %w", thresholdKB, errdef.ErrValidation)
	}
	if maxAttempts < 1 || maxAttempts > 10 {
		return fmt.Errorf("max_recovery_attempts must be in 1..10, got %d: %w", maxAttempts, errdef.ErrValidation)
	}
	return nil
}

// Validate checks the structural completeness of a loaded config.
func (c *ProjectConfig) Validate() error {
	if c.SchemaVersion == "" {
		return fmt.Errorf("missing schema_version: %w", errdef.ErrValidation)
	}
	if c.ProjectName == "" {
		return fmt.Errorf("missing project_name: %w", errdef.ErrValidation)
	}
	if !validProjectType(c.ProjectType) {
		return fmt.Errorf("invalid project_type %q: %w", c.ProjectType, errdef.ErrValidation)
	}
	return validateMemoryConfig(c.MemoryConfig.SummarizeThresholdKB, c.MemoryConfig.MaxRecoveryAttempts)
}
