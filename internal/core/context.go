package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/qa"
)

// recentDiscussions caps how many transcripts GetProjectContext embeds.
const recentDiscussions = 5

// GetProjectContext assembles everything an assistant needs to resume work:
// the config, the full memory mapping, the most recent discussions and
// pointers to the generated summaries.
func (m *Manager) GetProjectContext() (map[string]any, error) {
	ctx := map[string]any{}

	cfg, err := m.config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	ctx["config"] = cfg

	mapping, err := m.memory.GetAsMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to load project memory: %w", err)
	}
	ctx["memory"] = mapping

	ctx["recent_discussions"] = m.recentDiscussionFiles()
	ctx["summaries"] = map[string]string{
		"assets":   layout.AssetsSummaryFile,
		"overview": layout.OverviewFile,
		"timeline": layout.TimelineFile,
	}
	return ctx, nil
}

func (m *Manager) recentDiscussionFiles() []map[string]any {
	dir := layout.Path(m.root, layout.DiscussionsRawDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []map[string]any{}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "discussion_") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) > recentDiscussions {
		names = names[len(names)-recentDiscussions:]
	}

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		entry := map[string]any{
			"file": layout.DiscussionsRawDir + "/" + name,
		}
		var messages []Message
		if b, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			if json.Unmarshal(b, &messages) == nil {
				entry["messages"] = len(messages)
			}
		}
		sessionID := strings.TrimSuffix(strings.TrimPrefix(name, "discussion_"), ".json")
		summary := layout.DiscussionsSummaryDir + "/summary_" + sessionID + ".txt"
		if _, err := os.Stat(layout.Path(m.root, summary)); err == nil {
			entry["summary"] = summary
		}
		out = append(out, entry)
	}
	return out
}

// GetTimeline returns the most recent build-log actions, newest first, and
// regenerates summaries/timeline.txt from them.
func (m *Manager) GetTimeline(limit int) ([]buildlog.Action, error) {
	actions, err := m.log.GetRecentActions(limit)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("PROJECT TIMELINE\n")
	sb.WriteString("================\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	if len(actions) == 0 {
		sb.WriteString("No activity recorded yet.\n")
	}
	for _, a := range actions {
		fmt.Fprintf(&sb, "[%s] %s", a.Timestamp, a.Type)
		if len(a.Files) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(a.Files, ", "))
		}
		if a.TriggeredBy != "" {
			fmt.Fprintf(&sb, " by %s", a.TriggeredBy)
		}
		sb.WriteByte('\n')
	}
	if err := layout.WriteFileAtomic(layout.Path(m.root, layout.TimelineFile), []byte(sb.String())); err != nil {
		m.logger.Warn().Err(err).Msg("failed to write timeline")
	}
	return actions, nil
}

// Status is a compact view of where the project stands.
type Status struct {
	ProjectName string `json:"project_name"`
	ProjectType string `json:"project_type"`
	Phase       string `json:"phase"`
	Progress    int    `json:"progress"`
	Objectives  int    `json:"objectives"`
	Entities    int    `json:"entities"`
	Decisions   int    `json:"decisions"`
	Tasks       int    `json:"tasks"`
	Assets      int    `json:"assets"`
	Variables   int    `json:"variables"`
	OpenErrors  int    `json:"open_errors"`
	LastQAScore int    `json:"last_qa_score"`
	LastQARun   string `json:"last_qa_run,omitempty"`
}

// GetStatus aggregates counts from every store into one snapshot.
func (m *Manager) GetStatus() (*Status, error) {
	st := &Status{LastQAScore: -1}

	if cfg, err := m.config.Load(); err == nil {
		st.ProjectName = cfg.ProjectName
		st.ProjectType = cfg.ProjectType
	}
	mem, err := m.memory.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load project memory: %w", err)
	}
	st.Phase = mem.CurrentState.Phase
	st.Progress = mem.CurrentState.Progress
	st.Objectives = len(mem.Objectives)
	st.Entities = len(mem.Entities)
	st.Decisions = len(mem.Decisions)
	st.Tasks = len(mem.TaskBacklog)

	if indexed, err := m.assets.ListIndexed(); err == nil {
		st.Assets = len(indexed)
	}
	if n, err := m.variables.Count(); err == nil {
		st.Variables = n
	}
	if recs, err := m.detector.LoadErrors(); err == nil {
		for _, rec := range recs {
			if rec.Status == detect.StatusDetected || rec.Status == detect.StatusRecovering {
				st.OpenErrors++
			}
		}
	}
	if report := m.latestQAReport(); report != nil {
		st.LastQAScore = report.Score
		st.LastQARun = report.GeneratedAt
	}
	return st, nil
}

// latestQAReport loads the newest persisted QA report, if any. Report file
// names embed a sortable timestamp.
func (m *Manager) latestQAReport() *qa.Report {
	dir := layout.Path(m.root, layout.QAReportsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	latest := ""
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "qa_report_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name > latest {
			latest = name
		}
	}
	if latest == "" {
		return nil
	}
	b, err := os.ReadFile(filepath.Join(dir, latest))
	if err != nil {
		return nil
	}
	var report qa.Report
	if err := json.Unmarshal(b, &report); err != nil {
		return nil
	}
	return &report
}
