package core

import (
	"fmt"

	"github.com/p-blackswan/memvault/internal/assets"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/memstore"
	"github.com/p-blackswan/memvault/internal/qa"
	"github.com/p-blackswan/memvault/internal/recovery"
	"github.com/p-blackswan/memvault/internal/variables"
)

// AddAsset stores a file in the right asset directory, indexes it and
// refreshes the assets summary.
func (m *Manager) AddAsset(sourcePath, assetType, description string) (*assets.AssetInfo, error) {
	info, err := m.assets.StoreAsset(sourcePath, assetType, description)
	if err != nil {
		return nil, err
	}
	m.countAction(buildlog.ActionAssetAddition)
	if err := m.assets.SummarizeAssets(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to refresh assets summary")
	}
	return info, nil
}

// AddMemoryObjective appends an objective and refreshes the overview.
func (m *Manager) AddMemoryObjective(description, priority string) (*memstore.Objective, error) {
	o, err := m.memory.AddObjective(description, priority)
	if err != nil {
		return nil, err
	}
	m.afterMemoryMutation()
	return o, nil
}

// AddMemoryEntity appends an entity and refreshes the overview.
func (m *Manager) AddMemoryEntity(name, entityType string, attributes map[string]any) (*memstore.Entity, error) {
	e, err := m.memory.AddEntity(name, entityType, attributes)
	if err != nil {
		return nil, err
	}
	m.afterMemoryMutation()
	return e, nil
}

// AddMemoryDecision appends a decision and refreshes the overview.
func (m *Manager) AddMemoryDecision(decision, rationale, madeBy string) (*memstore.Decision, error) {
	d, err := m.memory.AddDecision(decision, rationale, madeBy)
	if err != nil {
		return nil, err
	}
	m.afterMemoryMutation()
	return d, nil
}

// AddMemoryConstraint appends a constraint and refreshes the overview.
func (m *Manager) AddMemoryConstraint(description, category string) (*memstore.Constraint, error) {
	c, err := m.memory.AddConstraint(description, category)
	if err != nil {
		return nil, err
	}
	m.afterMemoryMutation()
	return c, nil
}

// AddMemoryStyleRule appends a style rule and refreshes the overview.
func (m *Manager) AddMemoryStyleRule(rule, appliesTo string) (*memstore.StyleRule, error) {
	r, err := m.memory.AddStyleRule(rule, appliesTo)
	if err != nil {
		return nil, err
	}
	m.afterMemoryMutation()
	return r, nil
}

// AddMemoryTask appends a backlog task and refreshes the overview.
func (m *Manager) AddMemoryTask(task, priority string) (*memstore.Task, error) {
	t, err := m.memory.AddTask(task, priority)
	if err != nil {
		return nil, err
	}
	m.afterMemoryMutation()
	return t, nil
}

// UpdateProjectState replaces the CurrentState singleton and refreshes the
// overview.
func (m *Manager) UpdateProjectState(phase string, progress int, activeTasks, blockers []string) error {
	if err := m.memory.UpdateState(phase, progress, activeTasks, blockers); err != nil {
		return err
	}
	m.countAction(buildlog.ActionStateUpdate)
	if err := m.regenerateOverview(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to refresh project overview")
	}
	return nil
}

func (m *Manager) afterMemoryMutation() {
	m.countAction(buildlog.ActionMemoryUpdate)
	if err := m.regenerateOverview(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to refresh project overview")
	}
}

// SetVariable stores a dynamic variable; the type is inferred from the value.
func (m *Manager) SetVariable(name string, value any, description string) error {
	if err := m.variables.Set(name, value, "", description); err != nil {
		return err
	}
	m.countAction(buildlog.ActionVariableChange)
	return nil
}

// GetVariable returns a variable's value, or def when it is not set.
func (m *Manager) GetVariable(name string, def any) (any, error) {
	return m.variables.Get(name, def)
}

// Variables exposes the underlying variable store for nested and list
// operations.
func (m *Manager) Variables() *variables.Store { return m.variables }

// Memory exposes the underlying memory store for conflict resolution and
// schema validation.
func (m *Manager) Memory() *memstore.Store { return m.memory }

// UpdateConfig applies a validated partial update to the project config and
// re-wires config-driven behavior.
func (m *Manager) UpdateConfig(updates map[string]any) error {
	if _, err := m.config.UpdateConfig(updates); err != nil {
		return err
	}
	m.countAction(buildlog.ActionConfigUpdate)
	if cfg, err := m.config.Load(); err == nil {
		m.applyConfig(cfg)
	}
	return nil
}

// ValidateProjectState runs a full detection pass, durably logging whatever
// it finds, and returns the detected errors.
func (m *Manager) ValidateProjectState() ([]detect.Error, error) {
	cfg := m.loadConfig()
	if !cfg.MemoryConfig.ErrorDetection {
		m.logger.Debug().Msg("error detection disabled by config")
		return nil, nil
	}
	errs, err := m.detector.DetectErrors()
	if err != nil {
		return nil, err
	}
	if err := m.detector.LogErrors(errs); err != nil {
		return nil, err
	}
	if m.metrics != nil {
		for _, e := range errs {
			m.metrics.RecordErrorDetected(string(e.Type), string(e.Severity))
		}
	}
	return errs, nil
}

// TriggerRecovery runs a recovery pass at the named tier.
func (m *Manager) TriggerRecovery(tier string) (*recovery.Report, error) {
	t, err := recovery.ParseTier(tier)
	if err != nil {
		return nil, err
	}
	report, err := m.engine.Recover(t)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		outcome := "failure"
		if report.Success {
			outcome = "success"
		}
		m.metrics.RecordRecovery(string(t), outcome)
	}
	return report, nil
}

// ConfirmRecovery executes previously queued guided-recovery actions.
func (m *Manager) ConfirmRecovery(actionIDs []string) (*recovery.Report, error) {
	return m.engine.ApplyPending(actionIDs)
}

// RunQualityCheck generates and persists a QA report.
func (m *Manager) RunQualityCheck() (*qa.Report, error) {
	report, err := m.auditor.GenerateQAReport()
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.RecordQARun(report.Score)
	}
	return report, nil
}

// AutoFixQualityIssues resolves every auto-fixable issue in a QA report.
func (m *Manager) AutoFixQualityIssues(report *qa.Report) (*qa.FixResult, error) {
	res, err := m.auditor.AutoFixIssues(report)
	if err != nil {
		return nil, err
	}
	m.logger.Info().Int("fixed", res.Fixed).Int("failed", res.Failed).Int("total", res.Total).
		Msg("auto-fix pass complete")
	return res, nil
}

// SearchLogs searches the raw build log.
func (m *Manager) SearchLogs(term string) ([]buildlog.Action, error) {
	if term == "" {
		return nil, fmt.Errorf("search term is required")
	}
	return m.log.SearchLogs(term)
}
