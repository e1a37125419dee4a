// Package buildlog implements the append-only project action log. Every
// mutating component records its actions here; the raw log is JSON-lines so
// it can always be parsed back, and the clean log carries a human-readable
// rendering of the same entries. Prior bytes are never rewritten.
package buildlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/layout"
)

// ActionType identifies what a log entry records.
type ActionType string

const (
	ActionProjectInit        ActionType = "project_initialized"
	ActionFileCreation       ActionType = "file_creation"
	ActionConfigUpdate       ActionType = "config_update"
	ActionMemoryUpdate       ActionType = "memory_update"
	ActionStateUpdate        ActionType = "state_update"
	ActionVariableChange     ActionType = "variable_change"
	ActionAssetAddition      ActionType = "asset_addition"
	ActionSummaryGeneration  ActionType = "summary_generation"
	ActionDiscussionRecorded ActionType = "discussion_recorded"
	ActionDecision           ActionType = "decision"
	ActionErrorDetected      ActionType = "error_detected"
	ActionRecoveryAttempt    ActionType = "recovery_attempt"
	ActionQARun              ActionType = "qa_run"
)

// Action is one immutable log entry.
type Action struct {
	ID          string            `json:"id"`
	Timestamp   string            `json:"timestamp"`
	Type        ActionType        `json:"action"`
	Files       []string          `json:"files"`
	Params      map[string]string `json:"params,omitempty"`
	TriggeredBy string            `json:"triggered_by"`
}

// Logger appends actions to the build logs. A single mutex guards the append
// path so interleaved calls from different components within the process
// stay atomic. Cross-process writers are not supported.
type Logger struct {
	root      string
	mu        sync.Mutex
	languages []string
	logger    zerolog.Logger
}

// New creates a build logger for a project root.
func New(root string, logger zerolog.Logger) *Logger {
	return &Logger{
		root:   root,
		logger: logger.With().Str("component", "buildlog").Logger(),
	}
}

// SetTargetLanguages configures the languages mirrored into the translated
// log. Empty disables mirroring.
func (l *Logger) SetTargetLanguages(langs []string) {
	l.mu.Lock()
	l.languages = langs
	l.mu.Unlock()
}

// LogAction appends one entry to the raw and clean logs.
func (l *Logger) LogAction(t ActionType, affectedFiles []string, params map[string]string, triggeredBy string) error {
	if affectedFiles == nil {
		affectedFiles = []string{}
	}
	entry := Action{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Type:        t,
		Files:       affectedFiles,
		Params:      params,
		TriggeredBy: triggeredBy,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := appendLine(layout.Path(l.root, layout.RawLogFile), string(raw)); err != nil {
		return err
	}
	clean := formatClean(entry)
	if err := appendLine(layout.Path(l.root, layout.CleanLogFile), clean); err != nil {
		return err
	}
	for _, lang := range l.languages {
		line := fmt.Sprintf("[%s] %s", lang, clean)
		if err := appendLine(layout.Path(l.root, layout.TranslatedLogFile), line); err != nil {
			return err
		}
	}

	l.logger.Debug().Str("action", string(t)).Strs("files", affectedFiles).Msg("action logged")
	return nil
}

// LogRecoveryAttempt appends one line to the separate recovery log, keeping
// failure-repair noise out of the primary history.
func (l *Logger) LogRecoveryAttempt(errorID, action string, success bool) error {
	line := fmt.Sprintf("[%s] error=%s action=%q success=%t",
		time.Now().UTC().Format(time.RFC3339Nano), errorID, action, success)
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(layout.Path(l.root, layout.RecoveryLogFile), line)
}

// GetRecentActions parses the raw log and returns up to limit entries,
// newest first. The log is never mutated.
func (l *Logger) GetRecentActions(limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 20
	}
	actions, err := l.readAll()
	if err != nil {
		return nil, err
	}
	var out []Action
	for i := len(actions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, actions[i])
	}
	return out, nil
}

// SearchLogs returns every entry whose type, files, params, or actor contain
// the term (case-insensitive), oldest first.
func (l *Logger) SearchLogs(term string) ([]Action, error) {
	actions, err := l.readAll()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	var out []Action
	for _, a := range actions {
		if matchesAction(a, needle) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (l *Logger) readAll() ([]Action, error) {
	f, err := os.Open(layout.Path(l.root, layout.RawLogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open build log: %w", err)
	}
	defer f.Close()

	var actions []Action
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var a Action
		if err := json.Unmarshal([]byte(line), &a); err != nil {
			// Unparsable lines are the QA auditor's business; skip here.
			l.logger.Warn().Str("line", line).Msg("skipping unparsable log line")
			continue
		}
		actions = append(actions, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan build log: %w", err)
	}
	return actions, nil
}

func matchesAction(a Action, needle string) bool {
	if strings.Contains(strings.ToLower(string(a.Type)), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(a.TriggeredBy), needle) {
		return true
	}
	for _, f := range a.Files {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	for k, v := range a.Params {
		if strings.Contains(strings.ToLower(k), needle) || strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func formatClean(a Action) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", a.Timestamp, a.Type)
	if len(a.Files) > 0 {
		fmt.Fprintf(&sb, " files=%s", strings.Join(a.Files, ","))
	}
	if len(a.Params) > 0 {
		keys := make([]string, 0, len(a.Params))
		for k := range a.Params {
			keys = append(keys, k)
		}
		// Stable param order for readable diffs.
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+a.Params[k])
		}
		fmt.Fprintf(&sb, " params=%s", strings.Join(parts, ";"))
	}
	fmt.Fprintf(&sb, " by=%s", a.TriggeredBy)
	return sb.String()
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}
