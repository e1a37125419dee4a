// Package detect implements the error detector: it scans the stores for
// missing files, malformed JSON, and state inconsistencies, and emits
// classified error records. Detection never repairs anything; repair is the
// recovery engine's job.
package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/bootstrap"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/memstore"
)

// Error lifecycle states.
const (
	StatusDetected      = "detected"
	StatusRecovering    = "recovering"
	StatusRecovered     = "recovered"
	StatusUnrecoverable = "unrecoverable"
)

// Error is one detected, classified problem. Records are append-logged to
// errors_detected.json and never rewritten in place.
type Error struct {
	ID                 string          `json:"id"`
	Type               errdef.Kind     `json:"type"`
	Severity           errdef.Severity `json:"severity"`
	DetectedAt         string          `json:"detected_at"`
	Description        string          `json:"description"`
	AffectedComponents []string        `json:"affected_components"`
	Details            map[string]any  `json:"details,omitempty"`
	Status             string          `json:"status"`
	RecoveryAttempts   int             `json:"recovery_attempts"`
}

// Detector scans the project for integrity problems.
type Detector struct {
	root   string
	boot   *bootstrap.Bootstrapper
	log    *buildlog.Logger
	logger zerolog.Logger
}

// New creates a detector for a project root.
func New(root string, boot *bootstrap.Bootstrapper, log *buildlog.Logger, logger zerolog.Logger) *Detector {
	return &Detector{
		root:   root,
		boot:   boot,
		log:    log,
		logger: logger.With().Str("component", "detect").Logger(),
	}
}

func newError(kind errdef.Kind, sev errdef.Severity, desc string, components []string, details map[string]any) Error {
	return Error{
		ID:                 uuid.New().String(),
		Type:               kind,
		Severity:           sev,
		DetectedAt:         time.Now().UTC().Format(time.RFC3339),
		Description:        desc,
		AffectedComponents: components,
		Details:            details,
		Status:             StatusDetected,
	}
}

// CheckMissingFiles diffs the expected structure against disk. Every absent
// required file is a high-severity missing_file error; absent directories
// are medium (recreating them is trivial and loses nothing).
func (d *Detector) CheckMissingFiles() ([]Error, error) {
	missing, err := d.boot.ValidateStructure(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to validate structure: %w", err)
	}
	dirs := map[string]bool{}
	for _, dir := range layout.RequiredDirs {
		dirs[dir] = true
	}

	var out []Error
	for _, rel := range missing {
		sev := errdef.SeverityHigh
		desc := fmt.Sprintf("required file %s is missing", rel)
		if dirs[rel] {
			sev = errdef.SeverityMedium
			desc = fmt.Sprintf("required directory %s is missing", rel)
		}
		out = append(out, newError(errdef.KindMissingFile, sev, desc,
			[]string{componentFor(rel)}, map[string]any{"path": rel}))
	}
	return out, nil
}

// ValidateJSONFiles attempts to parse every required JSON file. Syntax errors
// are invalid_json (high); unreadable or structurally hostile content is
// corrupted_data (critical).
func (d *Detector) ValidateJSONFiles() ([]Error, error) {
	var out []Error
	for _, rel := range layout.RequiredJSONFiles {
		b, err := os.ReadFile(layout.Path(d.root, rel))
		if err != nil {
			if os.IsNotExist(err) {
				continue // reported by CheckMissingFiles
			}
			out = append(out, newError(errdef.KindCorruptedData, errdef.SeverityCritical,
				fmt.Sprintf("%s cannot be read: %v", rel, err),
				[]string{componentFor(rel)}, map[string]any{"path": rel}))
			continue
		}
		if len(strings.TrimSpace(string(b))) == 0 {
			out = append(out, newError(errdef.KindCorruptedData, errdef.SeverityCritical,
				fmt.Sprintf("%s is empty (truncated write?)", rel),
				[]string{componentFor(rel)}, map[string]any{"path": rel}))
			continue
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			out = append(out, newError(errdef.KindInvalidJSON, errdef.SeverityHigh,
				fmt.Sprintf("%s is not valid JSON: %v", rel, err),
				[]string{componentFor(rel)}, map[string]any{"path": rel, "parse_error": err.Error()}))
			continue
		}
		if _, ok := doc.(map[string]any); !ok {
			out = append(out, newError(errdef.KindCorruptedData, errdef.SeverityCritical,
				fmt.Sprintf("%s does not contain a JSON object at the root", rel),
				[]string{componentFor(rel)}, map[string]any{"path": rel}))
		}
	}
	return out, nil
}

// CheckStateConsistency validates the CurrentState fields of project memory:
// the phase must be in the fixed vocabulary and progress an integer 0..100.
func (d *Detector) CheckStateConsistency() ([]Error, error) {
	b, err := os.ReadFile(layout.Path(d.root, layout.MemoryFile))
	if err != nil {
		return nil, nil // missing/unreadable is reported elsewhere
	}
	var doc struct {
		CurrentState map[string]any `json:"current_state"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, nil // invalid JSON is reported elsewhere
	}

	var out []Error
	if doc.CurrentState == nil {
		out = append(out, newError(errdef.KindInconsistentState, errdef.SeverityHigh,
			"project memory has no current_state section",
			[]string{"memory_store"}, map[string]any{"path": layout.MemoryFile}))
		return out, nil
	}
	phase, _ := doc.CurrentState["phase"].(string)
	if !memstore.ValidPhase(phase) {
		out = append(out, newError(errdef.KindInconsistentState, errdef.SeverityHigh,
			fmt.Sprintf("current_state.phase %q is not in the phase vocabulary %v", phase, memstore.ValidPhases),
			[]string{"memory_store"}, map[string]any{"phase": phase}))
	}
	switch p := doc.CurrentState["progress"].(type) {
	case float64:
		if p != float64(int(p)) || p < 0 || p > 100 {
			out = append(out, newError(errdef.KindInconsistentState, errdef.SeverityMedium,
				fmt.Sprintf("current_state.progress %v is not an integer in 0..100", p),
				[]string{"memory_store"}, map[string]any{"progress": p}))
		}
	default:
		out = append(out, newError(errdef.KindInconsistentState, errdef.SeverityMedium,
			"current_state.progress is not a number",
			[]string{"memory_store"}, nil))
	}
	return out, nil
}

// DetectErrors runs all checks and returns the union.
func (d *Detector) DetectErrors() ([]Error, error) {
	missing, err := d.CheckMissingFiles()
	if err != nil {
		return nil, err
	}
	invalid, err := d.ValidateJSONFiles()
	if err != nil {
		return nil, err
	}
	state, err := d.CheckStateConsistency()
	if err != nil {
		return nil, err
	}
	all := append(missing, invalid...)
	all = append(all, state...)
	d.logger.Info().Int("errors", len(all)).Msg("detection pass complete")
	return all, nil
}

func componentFor(rel string) string {
	switch {
	case rel == layout.ConfigFile:
		return "config_store"
	case rel == layout.MemoryFile:
		return "memory_store"
	case rel == layout.VariablesFile:
		return "variables_store"
	case strings.HasPrefix(rel, layout.AssetsDir):
		return "asset_store"
	case strings.HasPrefix(rel, layout.BuildLogsDir):
		return "build_logger"
	case strings.HasPrefix(rel, layout.SummariesDir):
		return "summaries"
	case strings.HasPrefix(rel, layout.QAReportsDir):
		return "qa_auditor"
	case strings.HasPrefix(rel, layout.AssistantDir):
		return "memory_store"
	}
	return "project"
}
