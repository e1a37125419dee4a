// Package layout owns the on-disk shape of a memvault project: the required
// directory tree, the required files, and the schema-valid seed content each
// file starts from. Every other component resolves project paths through this
// package so the expected structure exists in exactly one place.
package layout

import "path/filepath"

// SchemaVersion tags every persisted JSON document.
const SchemaVersion = "1.0"

// Relative paths of the project structure (slash-separated).
const (
	ConfigFile = "project_config.json"

	AssistantDir          = "assistant"
	MemoryFile            = "assistant/memory.json"
	VariablesFile         = "assistant/variables.json"
	DiscussionsRawDir     = "assistant/discussions_raw"
	DiscussionsSummaryDir = "assistant/discussions_summary"

	AssetsDir            = "assets"
	ImagesDir            = "assets/images"
	AudioDir             = "assets/audio"
	VideoDir             = "assets/video"
	DocumentsDir         = "assets/documents"
	AttachmentsIndexFile = "assets/attachments_index.txt"

	SummariesDir     = "summaries"
	AssetsSummaryFile = "summaries/assets_summary.txt"
	OverviewFile      = "summaries/project_overview.txt"
	TimelineFile      = "summaries/timeline.txt"

	BuildLogsDir       = "build_logs"
	RawLogFile         = "build_logs/build_steps_raw.log"
	CleanLogFile       = "build_logs/build_steps_clean.txt"
	TranslatedLogFile  = "build_logs/build_steps_translated.txt"
	ErrorsFile         = "build_logs/errors_detected.json"
	RecoveryLogFile    = "build_logs/recovery_attempts.log"
	PendingActionsFile = "build_logs/pending_actions.json"

	QAReportsDir = "qa_reports"
)

// RequiredDirs lists every directory a valid project must contain,
// parents before children.
var RequiredDirs = []string{
	AssistantDir,
	DiscussionsRawDir,
	DiscussionsSummaryDir,
	AssetsDir,
	ImagesDir,
	AudioDir,
	VideoDir,
	DocumentsDir,
	SummariesDir,
	BuildLogsDir,
	QAReportsDir,
}

// RequiredFiles lists every file a valid project must contain.
var RequiredFiles = []string{
	ConfigFile,
	MemoryFile,
	VariablesFile,
	AttachmentsIndexFile,
	AssetsSummaryFile,
	OverviewFile,
	TimelineFile,
	RawLogFile,
	CleanLogFile,
	TranslatedLogFile,
	ErrorsFile,
	RecoveryLogFile,
}

// RequiredJSONFiles lists the required files that must parse as JSON.
var RequiredJSONFiles = []string{
	ConfigFile,
	MemoryFile,
	VariablesFile,
	ErrorsFile,
}

// Path resolves a slash-separated relative path against a project root.
func Path(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

// AssetDir returns the storage directory for an asset type, or "" if the
// type is unknown. Valid types: image, audio, video, document.
func AssetDir(assetType string) string {
	switch assetType {
	case "image":
		return ImagesDir
	case "audio":
		return AudioDir
	case "video":
		return VideoDir
	case "document":
		return DocumentsDir
	}
	return ""
}

// AssetTypes lists the supported asset types in the fixed summary order.
var AssetTypes = []string{"image", "audio", "video", "document"}
