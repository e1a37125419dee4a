package qa

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/memvault/internal/assets"
	"github.com/p-blackswan/memvault/internal/bootstrap"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/memstore"
	"github.com/p-blackswan/memvault/internal/projectcfg"
)

func setupTestAuditor(t *testing.T) (*Auditor, string) {
	t.Helper()
	root := t.TempDir()
	boot := bootstrap.New(zerolog.Nop())
	require.NoError(t, boot.CreateStructure(root))
	cfg, err := projectcfg.CreateDefaultConfig("demo", projectcfg.TypeScript, nil, projectcfg.SystemDefaults())
	require.NoError(t, err)
	require.NoError(t, boot.InitializeFiles(root, cfg))

	log := buildlog.New(root, zerolog.Nop())
	det := detect.New(root, boot, log, zerolog.Nop())
	store := assets.NewStore(root, log, zerolog.Nop())
	return New(root, det, store, log, zerolog.Nop()), root
}

func writeSummaryPair(t *testing.T, root, sessionID string, rawBytes, summaryBytes int) {
	t.Helper()
	raw := layout.Path(root, layout.DiscussionsRawDir+"/discussion_"+sessionID+".json")
	require.NoError(t, os.WriteFile(raw, []byte(strings.Repeat("r", rawBytes)), 0o644))
	sum := layout.Path(root, layout.DiscussionsSummaryDir+"/summary_"+sessionID+".txt")
	require.NoError(t, os.WriteFile(sum, []byte(strings.Repeat("s", summaryBytes)), 0o644))
}

func findIssue(res CheckResult, issueType string) (Issue, bool) {
	for _, issue := range res.Issues {
		if issue.Type == issueType {
			return issue, true
		}
	}
	return Issue{}, false
}

func TestGenerateQAReport_CleanProject(t *testing.T) {
	aud, root := setupTestAuditor(t)

	report, err := aud.GenerateQAReport()
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
	assert.True(t, report.Valid)
	assert.Zero(t, report.TotalIssues)
	require.Len(t, report.Checks, 4)
	assert.Equal(t, report.ChecksPerformed, report.ChecksPassed+report.ChecksFailed)
	assert.Zero(t, report.ChecksFailed)
	assert.Empty(t, report.Recommendations)
	assert.Empty(t, report.RequiresAttention)
	assert.Empty(t, report.AutoFixed)

	names := make([]string, 0, 4)
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"summary_quality", "memory_consistency", "index_accuracy", "log_completeness"}, names)

	require.NotEmpty(t, report.ReportFile)
	b, err := os.ReadFile(layout.Path(root, report.ReportFile))
	require.NoError(t, err)
	var persisted Report
	require.NoError(t, json.Unmarshal(b, &persisted))
	assert.Equal(t, report.Score, persisted.Score)
	assert.Equal(t, report.GeneratedAt, persisted.GeneratedAt)
	assert.Equal(t, report.ChecksPerformed, persisted.ChecksPerformed)
}

func TestCheckSummaryQuality(t *testing.T) {
	aud, root := setupTestAuditor(t)

	clean := aud.CheckSummaryQuality()
	assert.True(t, clean.Valid)
	assert.Zero(t, clean.ChecksTotal, "no summaries means nothing to fail")

	writeSummaryPair(t, root, "ok", 1000, 150)       // 15%, inside the window
	writeSummaryPair(t, root, "squeezed", 1000, 50)  // 5%, over-compressed
	writeSummaryPair(t, root, "verbose", 1000, 400)  // 40%, under-compressed
	orphan := layout.Path(root, layout.DiscussionsSummaryDir+"/summary_ghost.txt")
	require.NoError(t, os.WriteFile(orphan, []byte("who am I summarizing"), 0o644))

	res := aud.CheckSummaryQuality()
	assert.False(t, res.Valid)
	assert.Equal(t, 4, res.ChecksTotal)
	assert.Equal(t, 1, res.ChecksPassed)
	require.Len(t, res.Issues, 3)

	high, ok := findIssue(res, IssueCompressionTooHigh)
	require.True(t, ok)
	assert.Contains(t, high.Description, "summary_squeezed.txt")

	low, ok := findIssue(res, IssueCompressionTooLow)
	require.True(t, ok)
	assert.Contains(t, low.Description, "summary_verbose.txt")

	ghost, ok := findIssue(res, IssueOrphanSummary)
	require.True(t, ok)
	assert.Contains(t, ghost.Description, "summary_ghost.txt")
}

func TestCheckMemoryConsistency(t *testing.T) {
	aud, root := setupTestAuditor(t)
	mem := memstore.NewStore(root, nil, zerolog.Nop())

	_, err := mem.AddEntity("Protagonist", "character", nil)
	require.NoError(t, err)
	task, err := mem.AddTask("write opening scene", "high")
	require.NoError(t, err)
	require.NoError(t, mem.UpdateState("planning", 10, []string{task.ID, "write opening scene"}, nil))

	clean := aud.CheckMemoryConsistency()
	assert.True(t, clean.Valid)
	assert.Equal(t, clean.ChecksTotal, clean.ChecksPassed)

	// Duplicate entity name (case-insensitive) and a dangling active task.
	_, err = mem.AddEntity("PROTAGONIST", "character", nil)
	require.NoError(t, err)
	require.NoError(t, mem.UpdateState("planning", 10, []string{task.ID, "task that matches nothing"}, nil))

	res := aud.CheckMemoryConsistency()
	assert.False(t, res.Valid)

	dup, ok := findIssue(res, IssueDuplicateEntity)
	require.True(t, ok)
	assert.Contains(t, dup.Description, "PROTAGONIST")

	dangling, ok := findIssue(res, IssueDanglingTaskRef)
	require.True(t, ok)
	assert.Contains(t, dangling.Description, "task that matches nothing")
	assert.Equal(t, memstore.SectionCurrentState, dangling.Target)
}

func TestCheckMemoryConsistency_DuplicateIDs(t *testing.T) {
	aud, root := setupTestAuditor(t)
	mem := memstore.NewStore(root, nil, zerolog.Nop())

	obj, err := mem.AddObjective("finish act one", "high")
	require.NoError(t, err)

	// Clone the objective record to force a duplicate id.
	path := layout.Path(root, layout.MemoryFile)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	objectives := doc["objectives"].([]any)
	doc["objectives"] = append(objectives, objectives[0])
	require.NoError(t, layout.WriteJSON(path, doc))

	res := aud.CheckMemoryConsistency()
	assert.False(t, res.Valid)
	issue, ok := findIssue(res, IssueDuplicateID)
	require.True(t, ok)
	assert.Contains(t, issue.Description, obj.ID)
	assert.Equal(t, memstore.SectionObjectives, issue.Target)
}

func TestCheckMemoryConsistency_Unreadable(t *testing.T) {
	aud, root := setupTestAuditor(t)
	require.NoError(t, os.WriteFile(layout.Path(root, layout.MemoryFile), []byte("{broken"), 0o644))

	res := aud.CheckMemoryConsistency()
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueUnreadableStore, res.Issues[0].Type)
	assert.False(t, res.Issues[0].AutoFixable)
}

func TestCheckIndexAccuracy(t *testing.T) {
	aud, root := setupTestAuditor(t)

	srcDir := t.TempDir()
	src := srcDir + "/notes.txt"
	require.NoError(t, os.WriteFile(src, []byte("outline"), 0o644))
	store := assets.NewStore(root, nil, zerolog.Nop())
	info, err := store.StoreAsset(src, "document", "")
	require.NoError(t, err)

	clean := aud.CheckIndexAccuracy()
	assert.True(t, clean.Valid)
	assert.Equal(t, 1, clean.ChecksPassed)

	// Orphan: delete the stored file. Gap: drop a file in unindexed.
	require.NoError(t, os.Remove(layout.Path(root, info.Path)))
	require.NoError(t, os.WriteFile(layout.Path(root, layout.ImagesDir+"/sketch.txt"), []byte("x"), 0o644))

	res := aud.CheckIndexAccuracy()
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 2)

	orphanIssue, ok := findIssue(res, IssueIndexOrphan)
	require.True(t, ok)
	assert.Equal(t, info.Path, orphanIssue.Target)
	assert.True(t, orphanIssue.AutoFixable)

	gapIssue, ok := findIssue(res, IssueIndexGap)
	require.True(t, ok)
	assert.Equal(t, "assets/images/sketch.txt", gapIssue.Target)
	assert.True(t, gapIssue.AutoFixable)
}

func TestCheckLogCompleteness(t *testing.T) {
	aud, root := setupTestAuditor(t)
	log := buildlog.New(root, zerolog.Nop())
	require.NoError(t, log.LogAction(buildlog.ActionProjectInit, nil, nil, "bootstrapper"))
	require.NoError(t, log.LogAction(buildlog.ActionMemoryUpdate, nil, nil, "assistant"))

	clean := aud.CheckLogCompleteness()
	assert.True(t, clean.Valid)
	assert.Equal(t, 2, clean.ChecksPassed)

	rawPath := layout.Path(root, layout.RawLogFile)
	f, err := os.OpenFile(rawPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	fmt.Fprintln(f, "not a json line")
	fmt.Fprintln(f, `{"timestamp":"1999-01-01T00:00:00Z","action":"memory_update"}`)
	require.NoError(t, f.Close())

	res := aud.CheckLogCompleteness()
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 2)

	_, ok := findIssue(res, IssueUnparsableLogLine)
	assert.True(t, ok)
	regress, ok := findIssue(res, IssueTimestampOrder)
	require.True(t, ok)
	assert.Contains(t, regress.Description, "backwards")
}

func TestScoreFormula(t *testing.T) {
	aud, root := setupTestAuditor(t)

	// Fresh memory passes 7 sub-checks; two bad summaries fail 2 of 9.
	writeSummaryPair(t, root, "a", 1000, 50)
	writeSummaryPair(t, root, "b", 1000, 900)

	report, err := aud.GenerateQAReport()
	require.NoError(t, err)
	assert.Equal(t, 78, report.Score, "7 of 9 sub-checks rounds to 78")
	assert.False(t, report.Valid)
	assert.Equal(t, 2, report.TotalIssues)
}

func TestGenerateQAReport_RoutesCriticals(t *testing.T) {
	aud, root := setupTestAuditor(t)
	require.NoError(t, os.WriteFile(layout.Path(root, layout.MemoryFile), []byte("{broken"), 0o644))

	_, err := aud.GenerateQAReport()
	require.NoError(t, err)

	recs, err := aud.det.LoadErrors()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, detect.StatusDetected, recs[0].Status)
	assert.Contains(t, recs[0].Description, "memory_consistency")
}

func TestAutoFixIssues(t *testing.T) {
	aud, root := setupTestAuditor(t)

	srcDir := t.TempDir()
	src := srcDir + "/kept.txt"
	require.NoError(t, os.WriteFile(src, []byte("stays"), 0o644))
	store := assets.NewStore(root, nil, zerolog.Nop())
	info, err := store.StoreAsset(src, "document", "")
	require.NoError(t, err)

	require.NoError(t, os.Remove(layout.Path(root, info.Path)))
	require.NoError(t, os.WriteFile(layout.Path(root, layout.AudioDir+"/hum.txt"), []byte("mmm"), 0o644))
	writeSummaryPair(t, root, "tight", 1000, 20) // not auto-fixable

	report, err := aud.GenerateQAReport()
	require.NoError(t, err)
	assert.Equal(t, report.ChecksPerformed, report.ChecksPassed+report.ChecksFailed)
	assert.Len(t, report.RequiresAttention, 3)
	assert.NotEmpty(t, report.Recommendations)
	assert.Empty(t, report.AutoFixed)

	res, err := aud.AutoFixIssues(report)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Fixed)
	assert.Zero(t, res.Failed)

	// Fixed issues move from requires_attention into auto_fixed, on the
	// in-memory report and in the persisted file alike.
	assert.Len(t, report.AutoFixed, 2)
	require.Len(t, report.RequiresAttention, 1)
	assert.Contains(t, report.RequiresAttention[0], "tight")

	b, err := os.ReadFile(layout.Path(root, report.ReportFile))
	require.NoError(t, err)
	var persisted Report
	require.NoError(t, json.Unmarshal(b, &persisted))
	assert.ElementsMatch(t, report.AutoFixed, persisted.AutoFixed)
	assert.Equal(t, report.RequiresAttention, persisted.RequiresAttention)

	after := aud.CheckIndexAccuracy()
	assert.True(t, after.Valid, "regenerating the index clears orphans and gaps")
}

func TestAutoFixIssues_NilReport(t *testing.T) {
	aud, _ := setupTestAuditor(t)
	_, err := aud.AutoFixIssues(nil)
	require.Error(t, err)
}
