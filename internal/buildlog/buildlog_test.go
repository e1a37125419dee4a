package buildlog

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/memvault/internal/layout"
)

func setupTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(layout.Path(root, layout.BuildLogsDir), 0o755))
	return New(root, zerolog.Nop()), root
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestLogAction_AppendsRawAndClean(t *testing.T) {
	l, root := setupTestLogger(t)

	require.NoError(t, l.LogAction(ActionFileCreation, []string{"assistant/memory.json"},
		map[string]string{"reason": "init"}, "bootstrapper"))
	require.NoError(t, l.LogAction(ActionMemoryUpdate, nil, nil, "assistant"))

	rawLines := readLines(t, layout.Path(root, layout.RawLogFile))
	require.Len(t, rawLines, 2)

	var first Action
	require.NoError(t, json.Unmarshal([]byte(rawLines[0]), &first))
	assert.Equal(t, ActionFileCreation, first.Type)
	assert.Equal(t, []string{"assistant/memory.json"}, first.Files)
	assert.Equal(t, "bootstrapper", first.TriggeredBy)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, first.Timestamp)

	cleanLines := readLines(t, layout.Path(root, layout.CleanLogFile))
	require.Len(t, cleanLines, 2)
	assert.Contains(t, cleanLines[0], "file_creation")
	assert.Contains(t, cleanLines[0], "files=assistant/memory.json")
	assert.Contains(t, cleanLines[0], "params=reason=init")
	assert.Contains(t, cleanLines[0], "by=bootstrapper")
}

func TestLogAction_TranslatedMirror(t *testing.T) {
	l, root := setupTestLogger(t)
	l.SetTargetLanguages([]string{"es", "fr"})

	require.NoError(t, l.LogAction(ActionAssetAddition, []string{"assets/images/a.png"}, nil, "asset_store"))

	lines := readLines(t, layout.Path(root, layout.TranslatedLogFile))
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[es] "))
	assert.True(t, strings.HasPrefix(lines[1], "[fr] "))
	assert.Contains(t, lines[0], "asset_addition")
}

func TestLogAction_NoTranslationWhenUnset(t *testing.T) {
	l, root := setupTestLogger(t)
	require.NoError(t, l.LogAction(ActionDecision, nil, nil, "assistant"))

	_, err := os.Stat(layout.Path(root, layout.TranslatedLogFile))
	assert.True(t, os.IsNotExist(err))
}

func TestGetRecentActions_NewestFirst(t *testing.T) {
	l, _ := setupTestLogger(t)
	for _, by := range []string{"one", "two", "three"} {
		require.NoError(t, l.LogAction(ActionMemoryUpdate, nil, nil, by))
	}

	actions, err := l.GetRecentActions(2)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "three", actions[0].TriggeredBy)
	assert.Equal(t, "two", actions[1].TriggeredBy)
}

func TestGetRecentActions_DefaultLimit(t *testing.T) {
	l, _ := setupTestLogger(t)
	for i := 0; i < 25; i++ {
		require.NoError(t, l.LogAction(ActionVariableChange, nil, nil, "variables_store"))
	}
	actions, err := l.GetRecentActions(0)
	require.NoError(t, err)
	assert.Len(t, actions, 20)
}

func TestGetRecentActions_EmptyLog(t *testing.T) {
	l, _ := setupTestLogger(t)
	actions, err := l.GetRecentActions(10)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestSearchLogs(t *testing.T) {
	l, _ := setupTestLogger(t)
	require.NoError(t, l.LogAction(ActionAssetAddition, []string{"assets/images/Cover.png"}, nil, "asset_store"))
	require.NoError(t, l.LogAction(ActionMemoryUpdate, nil, map[string]string{"section": "objectives"}, "assistant"))
	require.NoError(t, l.LogAction(ActionDecision, nil, nil, "assistant"))

	byFile, err := l.SearchLogs("cover.PNG")
	require.NoError(t, err)
	require.Len(t, byFile, 1)
	assert.Equal(t, ActionAssetAddition, byFile[0].Type)

	byParam, err := l.SearchLogs("objectives")
	require.NoError(t, err)
	assert.Len(t, byParam, 1)

	byActor, err := l.SearchLogs("assistant")
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	none, err := l.SearchLogs("zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReadAll_SkipsGarbageLines(t *testing.T) {
	l, root := setupTestLogger(t)
	require.NoError(t, l.LogAction(ActionMemoryUpdate, nil, nil, "assistant"))

	f, err := os.OpenFile(layout.Path(root, layout.RawLogFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{malformed\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, l.LogAction(ActionDecision, nil, nil, "assistant"))

	actions, err := l.GetRecentActions(10)
	require.NoError(t, err)
	assert.Len(t, actions, 2)
}

func TestLogRecoveryAttempt(t *testing.T) {
	l, root := setupTestLogger(t)
	require.NoError(t, l.LogRecoveryAttempt("err-1", "recreate_file_from_seed", true))
	require.NoError(t, l.LogRecoveryAttempt("err-2", "archive_and_reseed", false))

	lines := readLines(t, layout.Path(root, layout.RecoveryLogFile))
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "error=err-1")
	assert.Contains(t, lines[0], `action="recreate_file_from_seed"`)
	assert.Contains(t, lines[0], "success=true")
	assert.Contains(t, lines[1], "success=false")

	// Recovery noise stays out of the primary history.
	_, err := os.Stat(layout.Path(root, layout.RawLogFile))
	assert.True(t, os.IsNotExist(err))
}

func TestHelpers_ComposeParams(t *testing.T) {
	l, root := setupTestLogger(t)
	require.NoError(t, l.LogAssetAddition("a.png", "image", 2048, "asset_store"))
	require.NoError(t, l.LogVariableChange("counter", "increment", "variables_store"))
	require.NoError(t, l.LogError("err-9", "missing_file", "high"))

	rawLines := readLines(t, layout.Path(root, layout.RawLogFile))
	require.Len(t, rawLines, 3)

	var asset Action
	require.NoError(t, json.Unmarshal([]byte(rawLines[0]), &asset))
	assert.Equal(t, ActionAssetAddition, asset.Type)
	assert.Equal(t, "2048", asset.Params["size_bytes"])

	var detected Action
	require.NoError(t, json.Unmarshal([]byte(rawLines[2]), &detected))
	assert.Equal(t, ActionErrorDetected, detected.Type)
	assert.Equal(t, "error_detector", detected.TriggeredBy)
}
