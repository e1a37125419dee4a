package layout

import (
	"encoding/json"
	"time"
)

// Seed templates are pure data: the bootstrapper and the recovery engine both
// rebuild files from them, so nothing here may depend on runtime state other
// than the clock.

const attachmentsIndexSeed = `ATTACHMENTS INDEX
Regenerated by memvault. Do not edit by hand.
=================================================

`

const assetsSummarySeed = `ASSETS SUMMARY
==============

No assets stored yet.
`

const overviewSeed = `PROJECT OVERVIEW
================

Project not yet described.
`

const timelineSeed = `PROJECT TIMELINE
================

No activity recorded yet.
`

const cleanLogSeed = `BUILD LOG
=========

`

const translatedLogSeed = `BUILD LOG (TRANSLATED)
======================

`

// SeedMemory returns the schema-valid empty project memory document.
func SeedMemory(now time.Time) []byte {
	doc := map[string]any{
		"schema_version": SchemaVersion,
		"objectives":     []any{},
		"entities":       []any{},
		"decisions":      []any{},
		"constraints":    []any{},
		"style_rules":    []any{},
		"task_backlog":   []any{},
		"current_state": map[string]any{
			"phase":         "initialization",
			"progress":      0,
			"active_tasks":  []any{},
			"blockers":      []any{},
			"last_activity": now.UTC().Format(time.RFC3339),
		},
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return append(b, '\n')
}

// SeedVariables returns the schema-valid empty variables document.
func SeedVariables() []byte {
	doc := map[string]any{
		"schema_version": SchemaVersion,
		"variables":      map[string]any{},
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return append(b, '\n')
}

// SeedErrors returns the schema-valid empty detected-errors document.
func SeedErrors() []byte {
	doc := map[string]any{
		"schema_version": SchemaVersion,
		"errors":         []any{},
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return append(b, '\n')
}

// SeedFor returns the seed content for a required file, keyed by its relative
// path. The project config seed is not served here: the bootstrapper writes
// the caller-supplied config instead. ok is false for unknown paths.
func SeedFor(rel string, now time.Time) (content []byte, ok bool) {
	switch rel {
	case MemoryFile:
		return SeedMemory(now), true
	case VariablesFile:
		return SeedVariables(), true
	case ErrorsFile:
		return SeedErrors(), true
	case AttachmentsIndexFile:
		return []byte(attachmentsIndexSeed), true
	case AssetsSummaryFile:
		return []byte(assetsSummarySeed), true
	case OverviewFile:
		return []byte(overviewSeed), true
	case TimelineFile:
		return []byte(timelineSeed), true
	case CleanLogFile:
		return []byte(cleanLogSeed), true
	case TranslatedLogFile:
		return []byte(translatedLogSeed), true
	case RawLogFile, RecoveryLogFile:
		return []byte{}, true
	}
	return nil, false
}
