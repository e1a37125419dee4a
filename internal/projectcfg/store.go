package projectcfg

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

// Store owns project_config.json. Every read goes back to disk so there is a
// single source of truth per session.
type Store struct {
	root   string
	log    *buildlog.Logger
	logger zerolog.Logger
}

// NewStore creates a config store for a project root.
func NewStore(root string, log *buildlog.Logger, logger zerolog.Logger) *Store {
	return &Store{
		root:   root,
		log:    log,
		logger: logger.With().Str("component", "projectcfg").Logger(),
	}
}

// Load reads and parses the config file into a validated struct.
func (s *Store) Load() (*ProjectConfig, error) {
	path := layout.Path(s.root, layout.ConfigFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdef.NewStoreError("load", layout.ConfigFile, errdef.KindMissingFile, errdef.ErrNotFound)
		}
		return nil, errdef.NewStoreError("load", layout.ConfigFile, errdef.KindCorruptedData, err)
	}
	var cfg ProjectConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, errdef.NewStoreError("load", layout.ConfigFile, errdef.KindInvalidJSON, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errdef.NewStoreError("load", layout.ConfigFile, errdef.KindInconsistentState, err)
	}
	return &cfg, nil
}

// Save persists the config atomically.
func (s *Store) Save(cfg *ProjectConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return layout.WriteJSON(layout.Path(s.root, layout.ConfigFile), cfg)
}

// UpdateConfig validates every supplied field against its domain and rejects
// the entire update if any field fails. Validation happens strictly before
// any write, so prior state is untouched on failure.
func (s *Store) UpdateConfig(fields map[string]any) (*ProjectConfig, error) {
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}

	updated := *cfg
	changedKeys := make([]string, 0, len(fields))
	for key, value := range fields {
		if err := applyField(&updated, key, value); err != nil {
			return nil, fmt.Errorf("config update rejected: %w", err)
		}
		changedKeys = append(changedKeys, key)
	}
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("config update rejected: %w", err)
	}

	if err := s.Save(&updated); err != nil {
		return nil, err
	}
	if s.log != nil {
		params := map[string]string{}
		for _, k := range changedKeys {
			params["field_"+k] = "updated"
		}
		_ = s.log.LogAction(buildlog.ActionConfigUpdate, []string{layout.ConfigFile}, params, "config_store")
	}
	s.logger.Info().Strs("fields", changedKeys).Msg("config updated")
	return &updated, nil
}

func applyField(cfg *ProjectConfig, key string, value any) error {
	switch key {
	case "project_name":
		str, ok := value.(string)
		if !ok || str == "" {
			return fmt.Errorf("project_name must be a non-empty string: %w", errdef.ErrValidation)
		}
		cfg.ProjectName = str
	case "project_type":
		str, ok := value.(string)
		if !ok || !validProjectType(str) {
			return fmt.Errorf("project_type must be one of %v: %w", ValidProjectTypes, errdef.ErrValidation)
		}
		cfg.ProjectType = str
	case "objectives":
		list, err := toStringSlice(value)
		if err != nil {
			return fmt.Errorf("objectives: %w", err)
		}
		cfg.Objectives = list
	case "memory_config":
		sub, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("memory_config must be a mapping: %w", errdef.ErrValidation)
		}
		return applyMemoryConfig(&cfg.MemoryConfig, sub)
	default:
		return fmt.Errorf("unknown config field %q: %w", key, errdef.ErrValidation)
	}
	return nil
}

func applyMemoryConfig(mc *MemoryConfig, fields map[string]any) error {
	for key, value := range fields {
		switch key {
		case "auto_summarize", "auto_translate", "error_detection", "auto_recovery":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%s must be a boolean: %w", key, errdef.ErrValidation)
			}
			switch key {
			case "auto_summarize":
				mc.AutoSummarize = b
			case "auto_translate":
				mc.AutoTranslate = b
			case "error_detection":
				mc.ErrorDetection = b
			case "auto_recovery":
				mc.AutoRecovery = b
			}
		case "summarize_threshold_kb":
			n, err := toInt(value)
			if err != nil || n < 0 {
				return fmt.Errorf("summarize_threshold_kb must be a non-negative integer: %w", errdef.ErrValidation)
			}
			mc.SummarizeThresholdKB = n
		case "max_recovery_attempts":
			n, err := toInt(value)
			if err != nil || n < 1 || n > 10 {
				return fmt.Errorf("max_recovery_attempts must be in 1..10: %w", errdef.ErrValidation)
			}
			mc.MaxRecoveryAttempts = n
		case "target_languages":
			list, err := toStringSlice(value)
			if err != nil {
				return fmt.Errorf("target_languages: %w", err)
			}
			mc.TargetLanguages = list
		default:
			return fmt.Errorf("unknown memory_config field %q: %w", key, errdef.ErrValidation)
		}
	}
	return nil
}

func toStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected list of strings: %w", errdef.ErrValidation)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings: %w", errdef.ErrValidation)
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected an integer: %w", errdef.ErrValidation)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected an integer: %w", errdef.ErrValidation)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("expected an integer: %w", errdef.ErrValidation)
}
