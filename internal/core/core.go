// Package core wires the stores into one façade. External collaborators (the
// API layer, the CLI) talk to a Manager; every mutation flows through the
// build log and the metrics registry.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/assets"
	"github.com/p-blackswan/memvault/internal/bootstrap"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/memstore"
	"github.com/p-blackswan/memvault/internal/metrics"
	"github.com/p-blackswan/memvault/internal/projectcfg"
	"github.com/p-blackswan/memvault/internal/qa"
	"github.com/p-blackswan/memvault/internal/recovery"
	"github.com/p-blackswan/memvault/internal/variables"
)

// Manager is the façade over a single project directory.
type Manager struct {
	root     string
	defaults projectcfg.Defaults

	boot      *bootstrap.Bootstrapper
	log       *buildlog.Logger
	config    *projectcfg.Store
	memory    *memstore.Store
	variables *variables.Store
	assets    *assets.Store
	detector  *detect.Detector
	engine    *recovery.Engine
	auditor   *qa.Auditor

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New assembles a manager for a project root. metrics may be nil when no
// registry is wanted (tests, one-shot CLI runs).
func New(root string, defaults projectcfg.Defaults, m *metrics.Metrics, logger zerolog.Logger) *Manager {
	log := buildlog.New(root, logger)
	boot := bootstrap.New(logger)
	assetStore := assets.NewStore(root, log, logger)
	det := detect.New(root, boot, log, logger)

	mgr := &Manager{
		root:      root,
		defaults:  defaults,
		boot:      boot,
		log:       log,
		config:    projectcfg.NewStore(root, log, logger),
		memory:    memstore.NewStore(root, log, logger),
		variables: variables.NewStore(root, log, logger),
		assets:    assetStore,
		detector:  det,
		engine:    recovery.New(root, boot, det, assetStore, log, defaults.MaxRecoveryAttempts, logger),
		auditor:   qa.New(root, det, assetStore, log, logger),
		metrics:   m,
		logger:    logger.With().Str("component", "core").Logger(),
	}
	if defaults.AutoTranslate {
		log.SetTargetLanguages(defaults.TargetLanguages)
	}
	return mgr
}

// InitializeProject bootstraps a complete, valid project directory: the full
// tree, every seeded file, and a config built from the manager's defaults.
func (m *Manager) InitializeProject(name, projectType string, objectives []string) error {
	cfg, err := projectcfg.CreateDefaultConfig(name, projectType, objectives, m.defaults)
	if err != nil {
		return err
	}
	if err := m.boot.CreateStructure(m.root); err != nil {
		return fmt.Errorf("failed to create project structure: %w", err)
	}
	if err := m.boot.InitializeFiles(m.root, cfg); err != nil {
		return fmt.Errorf("failed to initialize project files: %w", err)
	}
	m.applyConfig(cfg)

	if err := m.log.LogAction(buildlog.ActionProjectInit, []string{layout.ConfigFile}, map[string]string{
		"project_name": name,
		"project_type": projectType,
	}, "bootstrapper"); err != nil {
		m.logger.Warn().Err(err).Msg("failed to log project initialization")
	}
	m.countAction(buildlog.ActionProjectInit)

	if err := m.regenerateOverview(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to write project overview")
	}
	m.logger.Info().Str("project", name).Str("type", projectType).Msg("project initialized")
	return nil
}

// applyConfig pushes config-driven behavior into the stores. The recovery
// engine is tuned in place; replacing it would orphan any confirmation
// queue it carries.
func (m *Manager) applyConfig(cfg *projectcfg.ProjectConfig) {
	if cfg.MemoryConfig.AutoTranslate {
		m.log.SetTargetLanguages(cfg.MemoryConfig.TargetLanguages)
	} else {
		m.log.SetTargetLanguages(nil)
	}
	m.engine.SetMaxAttempts(cfg.MemoryConfig.MaxRecoveryAttempts)
}

// loadConfig reads the persisted config, falling back to the manager
// defaults when the project has none yet.
func (m *Manager) loadConfig() *projectcfg.ProjectConfig {
	cfg, err := m.config.Load()
	if err != nil {
		m.logger.Debug().Err(err).Msg("config unavailable, using defaults")
		return &projectcfg.ProjectConfig{
			SchemaVersion: layout.SchemaVersion,
			ProjectType:   projectcfg.TypeCreative,
			MemoryConfig: projectcfg.MemoryConfig{
				AutoSummarize:        m.defaults.AutoSummarize,
				SummarizeThresholdKB: m.defaults.SummarizeThresholdKB,
				AutoTranslate:        m.defaults.AutoTranslate,
				TargetLanguages:      m.defaults.TargetLanguages,
				ErrorDetection:       m.defaults.ErrorDetection,
				AutoRecovery:         m.defaults.AutoRecovery,
				MaxRecoveryAttempts:  m.defaults.MaxRecoveryAttempts,
			},
		}
	}
	return cfg
}

func (m *Manager) countAction(t buildlog.ActionType) {
	if m.metrics != nil {
		m.metrics.RecordAction(string(t))
	}
}

// regenerateOverview rewrites summaries/project_overview.txt from the
// current config and memory.
func (m *Manager) regenerateOverview() error {
	cfg := m.loadConfig()
	var sb strings.Builder
	sb.WriteString("PROJECT OVERVIEW\n")
	sb.WriteString("================\n\n")
	fmt.Fprintf(&sb, "Name: %s\n", orDash(cfg.ProjectName))
	fmt.Fprintf(&sb, "Type: %s\n", orDash(cfg.ProjectType))
	fmt.Fprintf(&sb, "Created: %s\n", orDash(cfg.CreatedAt))
	fmt.Fprintf(&sb, "Updated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	sb.WriteString("Objectives:\n")
	if len(cfg.Objectives) == 0 {
		sb.WriteString("  (none recorded)\n")
	}
	for _, o := range cfg.Objectives {
		fmt.Fprintf(&sb, "  - %s\n", o)
	}

	if mem, err := m.memory.Load(); err == nil {
		fmt.Fprintf(&sb, "\nPhase: %s (%d%% complete)\n", mem.CurrentState.Phase, mem.CurrentState.Progress)
		fmt.Fprintf(&sb, "Objectives tracked: %d  Entities: %d  Decisions: %d  Tasks: %d\n",
			len(mem.Objectives), len(mem.Entities), len(mem.Decisions), len(mem.TaskBacklog))
		if len(mem.CurrentState.ActiveTasks) > 0 {
			sb.WriteString("Active tasks:\n")
			for _, t := range mem.CurrentState.ActiveTasks {
				fmt.Fprintf(&sb, "  - %s\n", t)
			}
		}
	}

	return layout.WriteFileAtomic(layout.Path(m.root, layout.OverviewFile), []byte(sb.String()))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
