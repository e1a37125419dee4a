// Package recovery implements the tiered recovery engine. Tiers are selected
// by caller intent: automatic performs only deterministic low-risk repairs,
// guided additionally proposes destructive repairs for confirmation, and
// desperate executes them unconditionally, salvaging what it can.
package recovery

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/assets"
	"github.com/p-blackswan/memvault/internal/bootstrap"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/errdef"
)

// Tier selects how aggressive a recovery run is allowed to be.
type Tier string

const (
	TierAutomatic Tier = "automatic"
	TierGuided    Tier = "guided"
	TierDesperate Tier = "desperate"
)

// ParseTier validates a tier name from external input.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierAutomatic, TierGuided, TierDesperate:
		return Tier(s), nil
	}
	return "", fmt.Errorf("unknown recovery tier %q: %w", s, errdef.ErrInvalidInput)
}

// PendingAction is a proposed destructive repair awaiting confirmation.
// Guided runs queue these instead of executing them; the caller confirms a
// subset via ApplyPending.
type PendingAction struct {
	ID        string `json:"id"`
	ErrorID   string `json:"error_id"`
	Action    string `json:"action"`
	Path      string `json:"path"`
	Rationale string `json:"rationale"`
}

// Report is the outcome of one recovery run. Repair failures never surface
// as errors from Recover; they land in LostFiles and Warnings so the caller
// can decide whether to escalate.
type Report struct {
	Tier           Tier            `json:"tier"`
	Success        bool            `json:"success"`
	ErrorsHandled  int             `json:"errors_handled"`
	RestoredFiles  []string        `json:"restored_files"`
	LostFiles      []string        `json:"lost_files"`
	Warnings       []string        `json:"warnings"`
	PendingActions []PendingAction `json:"pending_actions,omitempty"`
}

// Engine drives tiered recovery over a project root.
type Engine struct {
	root        string
	boot        *bootstrap.Bootstrapper
	det         *detect.Detector
	assetStore  *assets.Store
	log         *buildlog.Logger
	maxAttempts int
	logger      zerolog.Logger

	mu      sync.Mutex
	pending map[string]PendingAction
}

// New creates a recovery engine. maxAttempts bounds repair attempts per
// error record across runs.
func New(root string, boot *bootstrap.Bootstrapper, det *detect.Detector, assetStore *assets.Store, log *buildlog.Logger, maxAttempts int, logger zerolog.Logger) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	e := &Engine{
		root:        root,
		boot:        boot,
		det:         det,
		assetStore:  assetStore,
		log:         log,
		maxAttempts: maxAttempts,
		logger:      logger.With().Str("component", "recovery").Logger(),
		pending:     map[string]PendingAction{},
	}
	e.loadPending()
	return e
}

// SetMaxAttempts changes the per-error attempt bound for subsequent runs.
func (e *Engine) SetMaxAttempts(n int) {
	if n < 1 {
		n = 1
	}
	e.mu.Lock()
	e.maxAttempts = n
	e.mu.Unlock()
}

// Recover runs a full detect-then-repair pass at the given tier. Detected
// errors are durably logged before any repair is attempted. A run that finds
// nothing to repair reports success with empty lists.
func (e *Engine) Recover(tier Tier) (*Report, error) {
	detected, err := e.det.DetectErrors()
	if err != nil {
		return nil, fmt.Errorf("failed to detect errors: %w", err)
	}
	report := &Report{
		Tier:          tier,
		Success:       true,
		RestoredFiles: []string{},
		LostFiles:     []string{},
		Warnings:      []string{},
	}
	if len(detected) == 0 {
		e.logger.Info().Str("tier", string(tier)).Msg("nothing to recover")
		return report, nil
	}

	errs, err := e.reconcile(detected)
	if err != nil {
		return nil, err
	}
	report.ErrorsHandled = len(errs)

	for _, rec := range errs {
		if rec.RecoveryAttempts >= e.maxAttempts {
			e.markError(rec.ID, detect.StatusUnrecoverable, rec.RecoveryAttempts)
			report.Success = false
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s: giving up after %d attempts", rec.Description, rec.RecoveryAttempts))
			if p := pathOf(rec); p != "" {
				report.LostFiles = append(report.LostFiles, p)
			}
			continue
		}
		e.repair(tier, rec, report)
	}

	e.logger.Info().
		Str("tier", string(tier)).
		Bool("success", report.Success).
		Int("restored", len(report.RestoredFiles)).
		Int("lost", len(report.LostFiles)).
		Int("pending", len(report.PendingActions)).
		Msg("recovery run complete")
	return report, nil
}

// reconcile matches freshly detected errors against persisted unresolved
// records so attempt counters carry across runs, then durably logs the
// genuinely new ones.
func (e *Engine) reconcile(detected []detect.Error) ([]detect.Error, error) {
	persisted, err := e.det.LoadErrors()
	if err != nil {
		return nil, fmt.Errorf("failed to load error log: %w", err)
	}
	open := map[string]detect.Error{}
	for _, rec := range persisted {
		if rec.Status == detect.StatusDetected || rec.Status == detect.StatusRecovering {
			open[errorKey(rec)] = rec
		}
	}

	var merged []detect.Error
	var fresh []detect.Error
	for _, rec := range detected {
		if prior, ok := open[errorKey(rec)]; ok {
			merged = append(merged, prior)
			continue
		}
		merged = append(merged, rec)
		fresh = append(fresh, rec)
	}
	if err := e.det.LogErrors(fresh); err != nil {
		return nil, fmt.Errorf("failed to log detected errors: %w", err)
	}
	return merged, nil
}

func errorKey(rec detect.Error) string {
	return string(rec.Type) + "|" + pathOf(rec)
}

func pathOf(rec detect.Error) string {
	if rec.Details == nil {
		return ""
	}
	p, _ := rec.Details["path"].(string)
	return p
}

func (e *Engine) markError(id, status string, attempts int) {
	if err := e.det.UpdateErrorStatus(id, status, attempts); err != nil {
		e.logger.Warn().Err(err).Str("error_id", id).Msg("failed to update error status")
	}
}

func (e *Engine) logAttempt(errorID, action string, success bool) {
	if err := e.log.LogRecoveryAttempt(errorID, action, success); err != nil {
		e.logger.Warn().Err(err).Str("error_id", errorID).Msg("failed to write recovery log")
	}
}
