package recovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/memvault/internal/assets"
	"github.com/p-blackswan/memvault/internal/bootstrap"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/projectcfg"
)

func setupTestEngine(t *testing.T, maxAttempts int) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	boot := bootstrap.New(zerolog.Nop())
	require.NoError(t, boot.CreateStructure(root))
	cfg, err := projectcfg.CreateDefaultConfig("demo", projectcfg.TypeVideo, nil, projectcfg.SystemDefaults())
	require.NoError(t, err)
	require.NoError(t, boot.InitializeFiles(root, cfg))

	log := buildlog.New(root, zerolog.Nop())
	det := detect.New(root, boot, log, zerolog.Nop())
	store := assets.NewStore(root, log, zerolog.Nop())
	return New(root, boot, det, store, log, maxAttempts, zerolog.Nop()), root
}

func readMemoryState(t *testing.T, root string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(layout.Path(root, layout.MemoryFile))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	state, _ := doc["current_state"].(map[string]any)
	require.NotNil(t, state)
	return state
}

func TestParseTier(t *testing.T) {
	for _, name := range []string{"automatic", "guided", "desperate"} {
		tier, err := ParseTier(name)
		require.NoError(t, err)
		assert.Equal(t, Tier(name), tier)
	}
	_, err := ParseTier("heroic")
	require.ErrorIs(t, err, errdef.ErrInvalidInput)
}

func TestRecover_NothingToDo(t *testing.T) {
	eng, _ := setupTestEngine(t, 3)

	report, err := eng.Recover(TierAutomatic)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Zero(t, report.ErrorsHandled)
	assert.Empty(t, report.RestoredFiles)
	assert.Empty(t, report.LostFiles)
	assert.Empty(t, report.Warnings)
}

func TestRecoverAutomatic_RestoresMissing(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	require.NoError(t, os.Remove(layout.Path(root, layout.MemoryFile)))
	require.NoError(t, os.RemoveAll(layout.Path(root, layout.QAReportsDir)))

	report, err := eng.Recover(TierAutomatic)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.ErrorsHandled)
	assert.ElementsMatch(t, []string{layout.MemoryFile, layout.QAReportsDir}, report.RestoredFiles)
	assert.Empty(t, report.LostFiles)

	missing, err := eng.boot.ValidateStructure(root)
	require.NoError(t, err)
	assert.Empty(t, missing)

	recs, err := eng.det.LoadErrors()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, detect.StatusRecovered, rec.Status)
		assert.Equal(t, 1, rec.RecoveryAttempts)
	}

	logBytes, err := os.ReadFile(layout.Path(root, layout.RecoveryLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(logBytes), `action="recreate_file_from_seed"`)
	assert.Contains(t, string(logBytes), `action="recreate_directory"`)
	assert.Contains(t, string(logBytes), "success=true")
}

func TestRecoverAutomatic_DeclinesConfigAndCorruption(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	require.NoError(t, os.Remove(layout.Path(root, layout.ConfigFile)))
	require.NoError(t, os.WriteFile(layout.Path(root, layout.VariablesFile), []byte("{broken"), 0o644))

	report, err := eng.Recover(TierAutomatic)
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Empty(t, report.RestoredFiles)
	require.Len(t, report.Warnings, 2)
	assert.Empty(t, report.PendingActions, "automatic never queues confirmations")

	// Neither file was touched.
	_, err = os.Stat(layout.Path(root, layout.ConfigFile))
	assert.True(t, os.IsNotExist(err))
	b, err := os.ReadFile(layout.Path(root, layout.VariablesFile))
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(b))
}

func TestRecoverGuided_QueueAndConfirm(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	require.NoError(t, os.WriteFile(layout.Path(root, layout.VariablesFile), []byte("{broken"), 0o644))

	report, err := eng.Recover(TierGuided)
	require.NoError(t, err)
	require.Len(t, report.PendingActions, 1)
	p := report.PendingActions[0]
	assert.Equal(t, "archive_and_reseed", p.Action)
	assert.Equal(t, layout.VariablesFile, p.Path)
	assert.NotEmpty(t, p.Rationale)

	// Nothing executed until confirmed.
	b, err := os.ReadFile(layout.Path(root, layout.VariablesFile))
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(b))
	assert.Len(t, eng.PendingActions(), 1)

	applied, err := eng.ApplyPending([]string{p.ID})
	require.NoError(t, err)
	assert.True(t, applied.Success)
	assert.Equal(t, []string{layout.VariablesFile}, applied.RestoredFiles)
	assert.Empty(t, eng.PendingActions())

	var doc map[string]any
	b, err = os.ReadFile(layout.Path(root, layout.VariablesFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &doc))

	archives, err := filepath.Glob(layout.Path(root, layout.VariablesFile) + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, archives, 1)
	old, err := os.ReadFile(archives[0])
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(old))

	recs, err := eng.det.LoadErrors()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, detect.StatusRecovered, recs[0].Status)
}

func TestApplyPending_UnknownIDLeavesQueueIntact(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	require.NoError(t, os.WriteFile(layout.Path(root, layout.MemoryFile), []byte("{broken"), 0o644))

	report, err := eng.Recover(TierGuided)
	require.NoError(t, err)
	require.Len(t, report.PendingActions, 1)

	_, err = eng.ApplyPending([]string{report.PendingActions[0].ID, "no-such-id"})
	require.ErrorIs(t, err, errdef.ErrNotFound)
	assert.Len(t, eng.PendingActions(), 1, "a failed confirmation executes nothing")
}

func TestRecoverDesperate_ArchivesAndReseeds(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	require.NoError(t, os.WriteFile(layout.Path(root, layout.MemoryFile), []byte("not json at all"), 0o644))

	report, err := eng.Recover(TierDesperate)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, []string{layout.MemoryFile}, report.RestoredFiles)
	assert.NotEmpty(t, report.Warnings)

	state := readMemoryState(t, root)
	assert.Equal(t, "initialization", state["phase"])

	archives, err := filepath.Glob(layout.Path(root, layout.MemoryFile) + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, archives, 1)
}

func TestRecoverDesperate_RebuildsPlaceholderConfig(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	require.NoError(t, os.Remove(layout.Path(root, layout.ConfigFile)))

	report, err := eng.Recover(TierDesperate)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, []string{layout.ConfigFile}, report.RestoredFiles)

	b, err := os.ReadFile(layout.Path(root, layout.ConfigFile))
	require.NoError(t, err)
	var cfg projectcfg.ProjectConfig
	require.NoError(t, json.Unmarshal(b, &cfg))
	assert.Equal(t, "recovered-project", cfg.ProjectName)
	assert.Equal(t, projectcfg.TypeCreative, cfg.ProjectType)
}

func TestRecoverDesperate_ResetsState(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	path := layout.Path(root, layout.MemoryFile)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	state := doc["current_state"].(map[string]any)
	state["phase"] = "daydreaming"
	state["progress"] = 400
	require.NoError(t, layout.WriteJSON(path, doc))

	report, err := eng.Recover(TierDesperate)
	require.NoError(t, err)
	assert.True(t, report.Success)

	fixed := readMemoryState(t, root)
	assert.Equal(t, "initialization", fixed["phase"])
	assert.Equal(t, float64(100), fixed["progress"], "out-of-range progress is clamped")
	assert.NotEmpty(t, fixed["last_activity"])
}

// blockDirectory replaces a required directory with a regular file, so the
// directory is reported missing but recreating it keeps failing.
func blockDirectory(t *testing.T, root, rel string) {
	t.Helper()
	abs := layout.Path(root, rel)
	require.NoError(t, os.RemoveAll(abs))
	require.NoError(t, os.WriteFile(abs, []byte("in the way"), 0o644))
}

func TestRecover_AttemptCounterPersistsAcrossRuns(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	blockDirectory(t, root, layout.QAReportsDir)

	for i := 1; i <= 2; i++ {
		report, err := eng.Recover(TierAutomatic)
		require.NoError(t, err)
		assert.False(t, report.Success)

		recs, lerr := eng.det.LoadErrors()
		require.NoError(t, lerr)
		require.Len(t, recs, 1, "rerunning recovery does not duplicate the record")
		assert.Equal(t, i, recs[0].RecoveryAttempts)
	}
}

func TestRecover_GivesUpAtMaxAttempts(t *testing.T) {
	eng, root := setupTestEngine(t, 2)
	blockDirectory(t, root, layout.QAReportsDir)

	first, err := eng.Recover(TierAutomatic)
	require.NoError(t, err)
	assert.False(t, first.Success)
	assert.Empty(t, first.LostFiles)

	second, err := eng.Recover(TierAutomatic)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, []string{layout.QAReportsDir}, second.LostFiles)

	recs, err := eng.det.LoadErrors()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, detect.StatusUnrecoverable, recs[0].Status)
	assert.Equal(t, 2, recs[0].RecoveryAttempts)
}

func TestRecoverAutomatic_DeclineDoesNotBurnAttempts(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	require.NoError(t, os.WriteFile(layout.Path(root, layout.VariablesFile), []byte("{broken"), 0o644))

	for i := 0; i < 3; i++ {
		report, err := eng.Recover(TierAutomatic)
		require.NoError(t, err)
		assert.False(t, report.Success)
		assert.Empty(t, report.LostFiles)
	}

	recs, err := eng.det.LoadErrors()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, detect.StatusDetected, recs[0].Status)
	assert.Zero(t, recs[0].RecoveryAttempts, "declined runs execute nothing")

	// Still recoverable through the guided path afterwards.
	guided, err := eng.Recover(TierGuided)
	require.NoError(t, err)
	require.Len(t, guided.PendingActions, 1)
	applied, err := eng.ApplyPending([]string{guided.PendingActions[0].ID})
	require.NoError(t, err)
	assert.True(t, applied.Success)
	assert.Equal(t, []string{layout.VariablesFile}, applied.RestoredFiles)
}

func TestPendingActions_SurviveRestart(t *testing.T) {
	eng, root := setupTestEngine(t, 3)
	require.NoError(t, os.WriteFile(layout.Path(root, layout.VariablesFile), []byte("{broken"), 0o644))

	report, err := eng.Recover(TierGuided)
	require.NoError(t, err)
	require.Len(t, report.PendingActions, 1)
	id := report.PendingActions[0].ID

	// A fresh engine on the same root stands in for a new process.
	boot := bootstrap.New(zerolog.Nop())
	log := buildlog.New(root, zerolog.Nop())
	det := detect.New(root, boot, log, zerolog.Nop())
	reborn := New(root, boot, det, assets.NewStore(root, log, zerolog.Nop()), log, 3, zerolog.Nop())
	require.Len(t, reborn.PendingActions(), 1)

	applied, err := reborn.ApplyPending([]string{id})
	require.NoError(t, err)
	assert.True(t, applied.Success)
	assert.Equal(t, []string{layout.VariablesFile}, applied.RestoredFiles)
	assert.Empty(t, reborn.PendingActions())

	// Draining the queue is persisted too.
	third := New(root, boot, det, assets.NewStore(root, log, zerolog.Nop()), log, 3, zerolog.Nop())
	assert.Empty(t, third.PendingActions())
}
