package qa

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/memstore"
)

func newIssueID() string { return uuid.New().String() }

// Compression window for discussion summaries: a summary should land between
// 10% and 20% of its raw transcript's size.
const (
	compressionMin = 0.10
	compressionMax = 0.20
)

// CheckSummaryQuality verifies every discussion summary's compression ratio
// against its raw transcript. A project without summaries passes vacuously.
func (a *Auditor) CheckSummaryQuality() CheckResult {
	res := CheckResult{Name: "summary_quality", Valid: true, Issues: []Issue{}}

	sumDir := layout.Path(a.root, layout.DiscussionsSummaryDir)
	entries, err := os.ReadDir(sumDir)
	if err != nil {
		if os.IsNotExist(err) {
			return res
		}
		res.Valid = false
		res.ChecksTotal = 1
		res.Issues = append(res.Issues, Issue{
			Type:        IssueUnreadableStore,
			Severity:    errdef.SeverityCritical,
			Description: fmt.Sprintf("cannot read summary directory: %v", err),
			Target:      layout.DiscussionsSummaryDir,
		})
		return res
	}

	for _, entry := range entries {
		name := entry.Name()
		sessionID, ok := strings.CutPrefix(name, "summary_")
		if !ok || entry.IsDir() {
			continue
		}
		sessionID = strings.TrimSuffix(sessionID, ".txt")
		res.ChecksTotal++

		rawPath := filepath.Join(layout.Path(a.root, layout.DiscussionsRawDir), "discussion_"+sessionID+".json")
		rawInfo, err := os.Stat(rawPath)
		if err != nil {
			res.Issues = append(res.Issues, Issue{
				Type:        IssueOrphanSummary,
				Severity:    errdef.SeverityMedium,
				Description: fmt.Sprintf("summary %s has no raw transcript", name),
				Target:      layout.DiscussionsSummaryDir + "/" + name,
			})
			continue
		}
		sumInfo, err := entry.Info()
		if err != nil || rawInfo.Size() == 0 {
			continue
		}

		ratio := float64(sumInfo.Size()) / float64(rawInfo.Size())
		switch {
		case ratio < compressionMin:
			res.Issues = append(res.Issues, Issue{
				Type:     IssueCompressionTooHigh,
				Severity: errdef.SeverityLow,
				Description: fmt.Sprintf("summary %s compresses to %.1f%% of the transcript, below the %.0f%% floor",
					name, ratio*100, compressionMin*100),
				Target: layout.DiscussionsSummaryDir + "/" + name,
			})
		case ratio > compressionMax:
			res.Issues = append(res.Issues, Issue{
				Type:     IssueCompressionTooLow,
				Severity: errdef.SeverityLow,
				Description: fmt.Sprintf("summary %s is %.1f%% of the transcript, above the %.0f%% ceiling",
					name, ratio*100, compressionMax*100),
				Target: layout.DiscussionsSummaryDir + "/" + name,
			})
		default:
			res.ChecksPassed++
		}
	}
	res.Valid = len(res.Issues) == 0
	return res
}

// CheckMemoryConsistency looks for duplicate ids within sections, duplicate
// entity names, and active tasks that reference no backlog entry.
func (a *Auditor) CheckMemoryConsistency() CheckResult {
	res := CheckResult{Name: "memory_consistency", Valid: true, Issues: []Issue{}}

	b, err := os.ReadFile(layout.Path(a.root, layout.MemoryFile))
	if err != nil {
		res.Valid = false
		res.ChecksTotal = 1
		res.Issues = append(res.Issues, Issue{
			Type:        IssueUnreadableStore,
			Severity:    errdef.SeverityCritical,
			Description: fmt.Sprintf("cannot read project memory: %v", err),
			Target:      layout.MemoryFile,
		})
		return res
	}
	var mem memstore.ProjectMemory
	if err := json.Unmarshal(b, &mem); err != nil {
		res.Valid = false
		res.ChecksTotal = 1
		res.Issues = append(res.Issues, Issue{
			Type:        IssueUnreadableStore,
			Severity:    errdef.SeverityCritical,
			Description: fmt.Sprintf("project memory is not valid JSON: %v", err),
			Target:      layout.MemoryFile,
		})
		return res
	}

	checkDupes := func(section string, ids []string) {
		res.ChecksTotal++
		seen := map[string]bool{}
		clean := true
		for _, id := range ids {
			if seen[id] {
				clean = false
				res.Issues = append(res.Issues, Issue{
					Type:        IssueDuplicateID,
					Severity:    errdef.SeverityMedium,
					Description: fmt.Sprintf("duplicate id %s in section %s", id, section),
					Target:      section,
				})
			}
			seen[id] = true
		}
		if clean {
			res.ChecksPassed++
		}
	}

	checkDupes(memstore.SectionObjectives, collectIDs(len(mem.Objectives), func(i int) string { return mem.Objectives[i].ID }))
	checkDupes(memstore.SectionEntities, collectIDs(len(mem.Entities), func(i int) string { return mem.Entities[i].ID }))
	checkDupes(memstore.SectionDecisions, collectIDs(len(mem.Decisions), func(i int) string { return mem.Decisions[i].ID }))
	checkDupes(memstore.SectionConstraints, collectIDs(len(mem.Constraints), func(i int) string { return mem.Constraints[i].ID }))
	checkDupes(memstore.SectionStyleRules, collectIDs(len(mem.StyleRules), func(i int) string { return mem.StyleRules[i].ID }))
	checkDupes(memstore.SectionTaskBacklog, collectIDs(len(mem.TaskBacklog), func(i int) string { return mem.TaskBacklog[i].ID }))

	res.ChecksTotal++
	names := map[string]bool{}
	nameClean := true
	for _, ent := range mem.Entities {
		key := strings.ToLower(ent.Name)
		if names[key] {
			nameClean = false
			res.Issues = append(res.Issues, Issue{
				Type:        IssueDuplicateEntity,
				Severity:    errdef.SeverityMedium,
				Description: fmt.Sprintf("entity name %q appears more than once", ent.Name),
				Target:      memstore.SectionEntities,
			})
		}
		names[key] = true
	}
	if nameClean {
		res.ChecksPassed++
	}

	backlog := map[string]bool{}
	for _, t := range mem.TaskBacklog {
		backlog[t.ID] = true
		backlog[t.Task] = true
	}
	for _, active := range mem.CurrentState.ActiveTasks {
		res.ChecksTotal++
		if backlog[active] {
			res.ChecksPassed++
			continue
		}
		res.Issues = append(res.Issues, Issue{
			Type:        IssueDanglingTaskRef,
			Severity:    errdef.SeverityMedium,
			Description: fmt.Sprintf("active task %q matches no backlog entry", active),
			Target:      memstore.SectionCurrentState,
		})
	}

	res.Valid = len(res.Issues) == 0
	return res
}

// CheckIndexAccuracy cross-references the attachments index against the
// files actually on disk. Orphans and gaps are both auto-fixable by
// regenerating the index.
func (a *Auditor) CheckIndexAccuracy() CheckResult {
	res := CheckResult{Name: "index_accuracy", Valid: true, Issues: []Issue{}}

	indexed, err := a.assetStore.ListIndexed()
	if err != nil {
		res.Valid = false
		res.ChecksTotal = 1
		res.Issues = append(res.Issues, Issue{
			Type:        IssueUnreadableStore,
			Severity:    errdef.SeverityCritical,
			Description: fmt.Sprintf("cannot read attachments index: %v", err),
			Target:      layout.AttachmentsIndexFile,
		})
		return res
	}

	onDisk := map[string]bool{}
	for _, t := range layout.AssetTypes {
		dir := layout.Path(a.root, layout.AssetDir(t))
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				onDisk[filepath.ToSlash(filepath.Join(layout.AssetDir(t), entry.Name()))] = true
			}
		}
	}

	seen := map[string]bool{}
	for _, info := range indexed {
		res.ChecksTotal++
		seen[info.Path] = true
		if onDisk[info.Path] {
			res.ChecksPassed++
			continue
		}
		res.Issues = append(res.Issues, Issue{
			Type:        IssueIndexOrphan,
			Severity:    errdef.SeverityMedium,
			Description: fmt.Sprintf("index lists %s but the file is gone", info.Path),
			Target:      info.Path,
			AutoFixable: true,
		})
	}
	for rel := range onDisk {
		if seen[rel] {
			continue
		}
		res.ChecksTotal++
		res.Issues = append(res.Issues, Issue{
			Type:        IssueIndexGap,
			Severity:    errdef.SeverityMedium,
			Description: fmt.Sprintf("%s exists on disk but is not indexed", rel),
			Target:      rel,
			AutoFixable: true,
		})
	}

	res.Valid = len(res.Issues) == 0
	return res
}

// CheckLogCompleteness parses the raw build log line by line and verifies
// the timestamps never move backwards.
func (a *Auditor) CheckLogCompleteness() CheckResult {
	res := CheckResult{Name: "log_completeness", Valid: true, Issues: []Issue{}}

	f, err := os.Open(layout.Path(a.root, layout.RawLogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return res
		}
		res.Valid = false
		res.ChecksTotal = 1
		res.Issues = append(res.Issues, Issue{
			Type:        IssueUnreadableStore,
			Severity:    errdef.SeverityCritical,
			Description: fmt.Sprintf("cannot read raw build log: %v", err),
			Target:      layout.RawLogFile,
		})
		return res
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var prev time.Time
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		res.ChecksTotal++

		var entry struct {
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			res.Issues = append(res.Issues, Issue{
				Type:        IssueUnparsableLogLine,
				Severity:    errdef.SeverityMedium,
				Description: fmt.Sprintf("raw log line %d is not valid JSON", lineNo),
				Target:      layout.RawLogFile,
			})
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
		if err != nil {
			res.Issues = append(res.Issues, Issue{
				Type:        IssueUnparsableLogLine,
				Severity:    errdef.SeverityMedium,
				Description: fmt.Sprintf("raw log line %d carries an unparsable timestamp %q", lineNo, entry.Timestamp),
				Target:      layout.RawLogFile,
			})
			continue
		}
		if ts.Before(prev) {
			res.Issues = append(res.Issues, Issue{
				Type:        IssueTimestampOrder,
				Severity:    errdef.SeverityMedium,
				Description: fmt.Sprintf("raw log line %d moves backwards in time", lineNo),
				Target:      layout.RawLogFile,
			})
			continue
		}
		prev = ts
		res.ChecksPassed++
	}
	if err := scanner.Err(); err != nil {
		res.Issues = append(res.Issues, Issue{
			Type:        IssueUnreadableStore,
			Severity:    errdef.SeverityCritical,
			Description: fmt.Sprintf("raw log scan failed: %v", err),
			Target:      layout.RawLogFile,
		})
	}

	res.Valid = len(res.Issues) == 0
	return res
}

func collectIDs(n int, get func(int) string) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, get(i))
	}
	return out
}
