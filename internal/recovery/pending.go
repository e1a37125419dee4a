package recovery

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

// pendingDoc is the on-disk shape of the confirmation queue. Persisting it
// lets a confirm issued from a later process find the actions a guided run
// queued earlier.
type pendingDoc struct {
	SchemaVersion string          `json:"schema_version"`
	Actions       []PendingAction `json:"actions"`
}

// loadPending restores the confirmation queue persisted by earlier runs. A
// missing file is an empty queue; an unreadable one is logged and skipped
// so recovery never blocks on its own bookkeeping.
func (e *Engine) loadPending() {
	b, err := os.ReadFile(layout.Path(e.root, layout.PendingActionsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn().Err(err).Msg("failed to read pending action queue")
		}
		return
	}
	var doc pendingDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		e.logger.Warn().Err(err).Msg("pending action queue is unparsable, starting empty")
		return
	}
	for _, p := range doc.Actions {
		e.pending[p.ID] = p
	}
}

// savePendingLocked writes the queue back to disk. Callers hold e.mu.
func (e *Engine) savePendingLocked() {
	doc := pendingDoc{
		SchemaVersion: layout.SchemaVersion,
		Actions:       make([]PendingAction, 0, len(e.pending)),
	}
	for _, p := range e.pending {
		doc.Actions = append(doc.Actions, p)
	}
	sort.Slice(doc.Actions, func(i, j int) bool { return doc.Actions[i].ID < doc.Actions[j].ID })
	if err := layout.WriteJSON(layout.Path(e.root, layout.PendingActionsFile), doc); err != nil {
		e.logger.Warn().Err(err).Msg("failed to persist pending action queue")
	}
}

// queuePending records a proposed destructive repair instead of executing
// it. The error stays in recovering status until the caller confirms.
func (e *Engine) queuePending(rec detect.Error, action, path, rationale string, report *Report) {
	p := PendingAction{
		ID:        uuid.New().String(),
		ErrorID:   rec.ID,
		Action:    action,
		Path:      path,
		Rationale: rationale,
	}
	e.mu.Lock()
	e.pending[p.ID] = p
	e.savePendingLocked()
	e.mu.Unlock()
	report.PendingActions = append(report.PendingActions, p)
	e.logger.Info().
		Str("action", action).
		Str("path", path).
		Str("error_id", rec.ID).
		Msg("repair queued for confirmation")
}

// PendingActions returns the actions currently awaiting confirmation.
func (e *Engine) PendingActions() []PendingAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PendingAction, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p)
	}
	return out
}

// ApplyPending executes exactly the confirmed actions and drops them from
// the queue. Unknown ids fail the call before anything runs; unconfirmed
// actions remain queued.
func (e *Engine) ApplyPending(actionIDs []string) (*Report, error) {
	e.mu.Lock()
	confirmed := make([]PendingAction, 0, len(actionIDs))
	for _, id := range actionIDs {
		p, ok := e.pending[id]
		if !ok {
			e.mu.Unlock()
			return nil, fmt.Errorf("pending action %s: %w", id, errdef.ErrNotFound)
		}
		confirmed = append(confirmed, p)
	}
	for _, p := range confirmed {
		delete(e.pending, p.ID)
	}
	e.savePendingLocked()
	e.mu.Unlock()

	report := &Report{
		Tier:          TierGuided,
		Success:       true,
		ErrorsHandled: len(confirmed),
		RestoredFiles: []string{},
		LostFiles:     []string{},
		Warnings:      []string{},
	}
	for _, p := range confirmed {
		e.execute(p, report)
	}
	return report, nil
}

func (e *Engine) execute(p PendingAction, report *Report) {
	rec := e.lookupError(p.ErrorID)
	attempts := e.beginAttempt(rec)

	var err error
	switch p.Action {
	case actionResetFile:
		err = e.archiveAndReseed(rec, p.Path)
		if err == nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s was reset; previous content was archived alongside it", p.Path))
		}
	case actionResetState:
		err = e.resetState()
	case actionRecreateConfig:
		err = e.recreatePlaceholderConfig()
		if err == nil {
			report.Warnings = append(report.Warnings,
				"project_config.json was rebuilt with placeholder defaults; review name, type and objectives")
		}
	case actionRecreateDir:
		err = os.MkdirAll(layout.Path(e.root, p.Path), 0o755)
	default:
		err = fmt.Errorf("unknown pending action %q: %w", p.Action, errdef.ErrInvalidInput)
	}

	e.logAttempt(p.ErrorID, p.Action, err == nil)
	e.settle(rec, p.Path, attempts, err, report)
}

func (e *Engine) recreatePlaceholderConfig() error {
	return e.archiveAndReseed(detect.Error{}, layout.ConfigFile)
}

// lookupError re-reads the persisted record so attempt counts survive
// between the guided run that queued the action and the confirmation.
func (e *Engine) lookupError(id string) detect.Error {
	recs, err := e.det.LoadErrors()
	if err != nil {
		return detect.Error{ID: id}
	}
	for _, rec := range recs {
		if rec.ID == id {
			return rec
		}
	}
	return detect.Error{ID: id}
}
