package recovery

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/memstore"
	"github.com/p-blackswan/memvault/internal/projectcfg"
)

// Repair action names, as written to the recovery log.
const (
	actionRecreateDir    = "recreate_directory"
	actionRecreateFile   = "recreate_file_from_seed"
	actionRecreateConfig = "recreate_default_config"
	actionResetFile      = "archive_and_reseed"
	actionResetState     = "reset_current_state"
	actionRebuildIndex   = "rebuild_attachments_index"
)

// repair dispatches one error record to the right fix for the tier and
// folds the outcome into the report.
func (e *Engine) repair(tier Tier, rec detect.Error, report *Report) {
	switch rec.Type {
	case errdef.KindMissingFile:
		e.repairMissing(tier, rec, report)
	case errdef.KindInvalidJSON, errdef.KindCorruptedData:
		e.repairCorrupt(tier, rec, report)
	case errdef.KindInconsistentState:
		e.repairState(tier, rec, report)
	default:
		report.Success = false
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("no repair strategy for error type %s", rec.Type))
	}
}

// beginAttempt marks the record recovering and returns its attempt number.
// Called only once a repair is actually about to execute; a tier that merely
// warns or queues a proposal must not burn an attempt.
func (e *Engine) beginAttempt(rec detect.Error) int {
	attempts := rec.RecoveryAttempts + 1
	e.markError(rec.ID, detect.StatusRecovering, attempts)
	return attempts
}

// repairMissing recreates missing directories and seeds missing files. The
// project config has no seed: automatic cannot invent project parameters, so
// it defers; desperate writes a placeholder default config.
func (e *Engine) repairMissing(tier Tier, rec detect.Error, report *Report) {
	rel := pathOf(rec)
	abs := layout.Path(e.root, rel)

	if isRequiredDir(rel) {
		attempts := e.beginAttempt(rec)
		err := os.MkdirAll(abs, 0o755)
		e.logAttempt(rec.ID, actionRecreateDir, err == nil)
		e.settle(rec, rel, attempts, err, report)
		return
	}

	seed, ok := layout.SeedFor(rel, time.Now().UTC())
	if !ok {
		if rel == layout.ConfigFile {
			e.repairMissingConfig(tier, rec, report)
			return
		}
		report.Success = false
		report.LostFiles = append(report.LostFiles, rel)
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("no template available to recreate %s", rel))
		return
	}

	attempts := e.beginAttempt(rec)
	err := layout.WriteFileAtomic(abs, seed)
	e.logAttempt(rec.ID, actionRecreateFile, err == nil)
	e.settle(rec, rel, attempts, err, report)

	// A reseeded index is empty; repopulate it from whatever assets survive.
	if err == nil && rel == layout.AttachmentsIndexFile {
		if _, rerr := e.assetStore.RebuildIndex(); rerr != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("recreated %s but could not repopulate it: %v", rel, rerr))
		} else {
			e.logAttempt(rec.ID, actionRebuildIndex, true)
		}
	}
}

func (e *Engine) repairMissingConfig(tier Tier, rec detect.Error, report *Report) {
	switch tier {
	case TierAutomatic:
		report.Success = false
		report.Warnings = append(report.Warnings,
			"project_config.json is missing and cannot be recreated without project parameters; run guided or desperate recovery")
	case TierGuided:
		e.queuePending(rec, actionRecreateConfig, layout.ConfigFile,
			"recreate project_config.json with system defaults and a placeholder name; original settings are not recoverable", report)
	case TierDesperate:
		attempts := e.beginAttempt(rec)
		cfg, err := projectcfg.CreateDefaultConfig("recovered-project", projectcfg.TypeCreative, nil, projectcfg.SystemDefaults())
		if err == nil {
			err = e.writeConfig(cfg)
		}
		e.logAttempt(rec.ID, actionRecreateConfig, err == nil)
		e.settle(rec, layout.ConfigFile, attempts, err, report)
		if err == nil {
			report.Warnings = append(report.Warnings,
				"project_config.json was rebuilt with placeholder defaults; review name, type and objectives")
		}
	}
}

// repairCorrupt handles unparsable or hostile JSON. The fix is destructive
// (the current bytes are replaced by the seed), so automatic only reports,
// guided asks, desperate acts. The corrupt bytes are always archived first.
func (e *Engine) repairCorrupt(tier Tier, rec detect.Error, report *Report) {
	rel := pathOf(rec)
	switch tier {
	case TierAutomatic:
		report.Success = false
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s is corrupt; resetting it discards its content, run guided or desperate recovery", rel))
	case TierGuided:
		e.queuePending(rec, actionResetFile, rel,
			fmt.Sprintf("archive the corrupt bytes of %s and replace the file with a fresh template", rel), report)
	case TierDesperate:
		attempts := e.beginAttempt(rec)
		err := e.archiveAndReseed(rec, rel)
		e.logAttempt(rec.ID, actionResetFile, err == nil)
		e.settle(rec, rel, attempts, err, report)
		if err == nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s was reset; previous content was archived alongside it", rel))
		}
	}
}

// repairState clamps out-of-range progress and resets an unknown phase.
// This rewrites user state, so it follows the same confirmation rules as
// corrupt-file resets.
func (e *Engine) repairState(tier Tier, rec detect.Error, report *Report) {
	switch tier {
	case TierAutomatic:
		report.Success = false
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s; resetting state needs confirmation, run guided or desperate recovery", rec.Description))
	case TierGuided:
		e.queuePending(rec, actionResetState, layout.MemoryFile,
			"clamp progress into 0..100 and reset an unknown phase to initialization", report)
	case TierDesperate:
		attempts := e.beginAttempt(rec)
		err := e.resetState()
		e.logAttempt(rec.ID, actionResetState, err == nil)
		e.settle(rec, layout.MemoryFile, attempts, err, report)
	}
}

// settle records the terminal outcome of an executed repair in both the
// persisted error record and the report.
func (e *Engine) settle(rec detect.Error, rel string, attempts int, err error, report *Report) {
	if err == nil {
		e.markError(rec.ID, detect.StatusRecovered, attempts)
		report.RestoredFiles = append(report.RestoredFiles, rel)
		return
	}
	e.logger.Error().Err(err).Str("path", rel).Msg("repair failed")
	status := detect.StatusDetected
	if attempts >= e.maxAttempts {
		status = detect.StatusUnrecoverable
		report.LostFiles = append(report.LostFiles, rel)
	}
	e.markError(rec.ID, status, attempts)
	report.Success = false
	report.Warnings = append(report.Warnings, fmt.Sprintf("repair of %s failed: %v", rel, err))
}

// archiveAndReseed moves the corrupt bytes to <file>.corrupt-<ts> and writes
// the seed template in their place. The archive copy is kept for manual
// salvage.
func (e *Engine) archiveAndReseed(rec detect.Error, rel string) error {
	abs := layout.Path(e.root, rel)
	archive := fmt.Sprintf("%s.corrupt-%s", abs, time.Now().UTC().Format("20060102_150405"))
	if err := os.Rename(abs, archive); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to archive corrupt file: %w", err)
	}
	if rel == layout.ConfigFile {
		cfg, err := projectcfg.CreateDefaultConfig("recovered-project", projectcfg.TypeCreative, nil, projectcfg.SystemDefaults())
		if err != nil {
			return err
		}
		return e.writeConfig(cfg)
	}
	seed, ok := layout.SeedFor(rel, time.Now().UTC())
	if !ok {
		return fmt.Errorf("no template available for %s", rel)
	}
	if err := layout.WriteFileAtomic(abs, seed); err != nil {
		return err
	}
	if rel == layout.AttachmentsIndexFile {
		if _, err := e.assetStore.RebuildIndex(); err != nil {
			e.logger.Warn().Err(err).Msg("index reseeded but not repopulated")
		}
	}
	return nil
}

func (e *Engine) resetState() error {
	b, err := os.ReadFile(layout.Path(e.root, layout.MemoryFile))
	if err != nil {
		return fmt.Errorf("failed to read project memory: %w", err)
	}
	fixed, err := repairStateDocument(b)
	if err != nil {
		return err
	}
	return layout.WriteFileAtomic(layout.Path(e.root, layout.MemoryFile), fixed)
}

func (e *Engine) writeConfig(cfg *projectcfg.ProjectConfig) error {
	return layout.WriteJSON(layout.Path(e.root, layout.ConfigFile), cfg)
}

func isRequiredDir(rel string) bool {
	for _, dir := range layout.RequiredDirs {
		if rel == dir {
			return true
		}
	}
	return false
}

// repairStateDocument fixes current_state in place without disturbing the
// rest of the memory document.
func repairStateDocument(raw []byte) ([]byte, error) {
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("project memory is unparsable, run corruption recovery first: %w", err)
	}
	state, _ := doc["current_state"].(map[string]any)
	if state == nil {
		state = map[string]any{}
	}
	phase, _ := state["phase"].(string)
	if !memstore.ValidPhase(phase) {
		state["phase"] = "initialization"
	}
	switch p := state["progress"].(type) {
	case float64:
		switch {
		case p < 0:
			state["progress"] = 0
		case p > 100:
			state["progress"] = 100
		default:
			state["progress"] = int(p)
		}
	default:
		state["progress"] = 0
	}
	state["last_activity"] = time.Now().UTC().Format(time.RFC3339)
	doc["current_state"] = state
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
