package buildlog

import "fmt"

// Specialized wrappers keep the parameter mapping consistent across callers
// so the raw log stays machine-parseable.

// LogFileCreation records that a file was created.
func (l *Logger) LogFileCreation(path, triggeredBy string) error {
	return l.LogAction(ActionFileCreation, []string{path}, nil, triggeredBy)
}

// LogAssetAddition records a stored asset.
func (l *Logger) LogAssetAddition(filename, assetType string, sizeBytes int64, triggeredBy string) error {
	return l.LogAction(ActionAssetAddition, []string{filename}, map[string]string{
		"asset_type": assetType,
		"size_bytes": fmt.Sprintf("%d", sizeBytes),
	}, triggeredBy)
}

// LogMemoryUpdate records a mutation of a project memory section.
func (l *Logger) LogMemoryUpdate(section, entryID, triggeredBy string) error {
	return l.LogAction(ActionMemoryUpdate, nil, map[string]string{
		"section":  section,
		"entry_id": entryID,
	}, triggeredBy)
}

// LogVariableChange records a variable mutation (set, delete, clear, ...).
func (l *Logger) LogVariableChange(name, operation, triggeredBy string) error {
	return l.LogAction(ActionVariableChange, nil, map[string]string{
		"variable":  name,
		"operation": operation,
	}, triggeredBy)
}

// LogSummaryGeneration records a regenerated summary file.
func (l *Logger) LogSummaryGeneration(target, triggeredBy string) error {
	return l.LogAction(ActionSummaryGeneration, []string{target}, nil, triggeredBy)
}

// LogDecision records a decision added to project memory.
func (l *Logger) LogDecision(entryID, decision, triggeredBy string) error {
	return l.LogAction(ActionDecision, nil, map[string]string{
		"entry_id": entryID,
		"decision": decision,
	}, triggeredBy)
}

// LogError records a detected error in the primary history.
func (l *Logger) LogError(errorID, errType, severity string) error {
	return l.LogAction(ActionErrorDetected, nil, map[string]string{
		"error_id": errorID,
		"type":     errType,
		"severity": severity,
	}, "error_detector")
}
