// Package qa implements the quality auditor: four independent integrity
// checks over summaries, memory, the asset index and the build log, rolled
// up into scored, persisted reports.
package qa

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/assets"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

// Issue types reported by the checks.
const (
	IssueCompressionTooHigh = "compression_too_high"
	IssueCompressionTooLow  = "compression_too_low"
	IssueDuplicateID        = "duplicate_id"
	IssueDuplicateEntity    = "duplicate_entity_name"
	IssueDanglingTaskRef    = "dangling_task_reference"
	IssueIndexOrphan        = "index_orphan"
	IssueOrphanSummary      = "summary_without_transcript"
	IssueIndexGap           = "index_gap"
	IssueUnparsableLogLine  = "unparsable_log_line"
	IssueTimestampOrder     = "timestamp_regression"
	IssueUnreadableStore    = "unreadable_store"
)

// Issue is one flagged problem. AutoFixable issues can be resolved by
// AutoFixIssues without human input.
type Issue struct {
	Type        string          `json:"type"`
	Severity    errdef.Severity `json:"severity"`
	Description string          `json:"description"`
	Target      string          `json:"target,omitempty"`
	AutoFixable bool            `json:"auto_fixable"`
}

// CheckResult is the uniform shape every check returns.
type CheckResult struct {
	Name         string  `json:"name"`
	Valid        bool    `json:"valid"`
	ChecksPassed int     `json:"checks_passed"`
	ChecksTotal  int     `json:"checks_total"`
	Issues       []Issue `json:"issues"`
}

// Report aggregates one full audit run. ChecksPassed plus ChecksFailed
// always equals ChecksPerformed.
type Report struct {
	GeneratedAt       string        `json:"generated_at"`
	Score             int           `json:"score"`
	Valid             bool          `json:"valid"`
	ChecksPerformed   int           `json:"checks_performed"`
	ChecksPassed      int           `json:"checks_passed"`
	ChecksFailed      int           `json:"checks_failed"`
	Checks            []CheckResult `json:"checks"`
	TotalIssues       int           `json:"total_issues"`
	Recommendations   []string      `json:"recommendations"`
	AutoFixed         []string      `json:"auto_fixed"`
	RequiresAttention []string      `json:"requires_attention"`
	ReportFile        string        `json:"report_file,omitempty"`
}

// FixResult reports an auto-fix pass.
type FixResult struct {
	Fixed  int `json:"fixed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Auditor runs quality checks over a project root.
type Auditor struct {
	root       string
	det        *detect.Detector
	assetStore *assets.Store
	log        *buildlog.Logger
	logger     zerolog.Logger
}

// New creates an auditor.
func New(root string, det *detect.Detector, assetStore *assets.Store, log *buildlog.Logger, logger zerolog.Logger) *Auditor {
	return &Auditor{
		root:       root,
		det:        det,
		assetStore: assetStore,
		log:        log,
		logger:     logger.With().Str("component", "qa").Logger(),
	}
}

// GenerateQAReport runs all four checks, scores them, persists the report to
// a timestamped file under qa_reports/ and routes critical issues into the
// error detector's log.
func (a *Auditor) GenerateQAReport() (*Report, error) {
	now := time.Now().UTC()
	checks := []CheckResult{
		a.CheckSummaryQuality(),
		a.CheckMemoryConsistency(),
		a.CheckIndexAccuracy(),
		a.CheckLogCompleteness(),
	}

	report := &Report{
		GeneratedAt:       now.Format(time.RFC3339),
		Valid:             true,
		Checks:            checks,
		Recommendations:   []string{},
		AutoFixed:         []string{},
		RequiresAttention: []string{},
	}
	seenRec := map[string]bool{}
	for _, c := range checks {
		report.ChecksPassed += c.ChecksPassed
		report.ChecksPerformed += c.ChecksTotal
		report.TotalIssues += len(c.Issues)
		if !c.Valid {
			report.Valid = false
		}
		for _, issue := range c.Issues {
			report.RequiresAttention = append(report.RequiresAttention, issue.Description)
			if r := recommendationFor(issue); r != "" && !seenRec[r] {
				seenRec[r] = true
				report.Recommendations = append(report.Recommendations, r)
			}
		}
	}
	report.ChecksFailed = report.ChecksPerformed - report.ChecksPassed
	if report.ChecksPerformed == 0 {
		report.Score = 100
	} else {
		report.Score = int(math.Round(100 * float64(report.ChecksPassed) / float64(report.ChecksPerformed)))
	}

	rel := fmt.Sprintf("%s/qa_report_%s.json", layout.QAReportsDir, now.Format("20060102_150405"))
	if err := layout.WriteJSON(layout.Path(a.root, rel), report); err != nil {
		return nil, fmt.Errorf("failed to write qa report: %w", err)
	}
	report.ReportFile = rel

	if err := a.routeCriticals(checks); err != nil {
		a.logger.Warn().Err(err).Msg("failed to route critical issues to error log")
	}
	if err := a.log.LogAction(buildlog.ActionQARun, []string{rel}, map[string]string{
		"score":  fmt.Sprintf("%d", report.Score),
		"issues": fmt.Sprintf("%d", report.TotalIssues),
	}, "qa_auditor"); err != nil {
		a.logger.Warn().Err(err).Msg("failed to log qa run")
	}

	a.logger.Info().Int("score", report.Score).Int("issues", report.TotalIssues).Msg("qa report generated")
	return report, nil
}

// AutoFixIssues attempts every auto-fixable issue in the report. Index
// orphans and gaps share one fix: regenerating the index from disk. Fixed
// issues move from requires_attention into auto_fixed and the persisted
// report file is updated to match.
func (a *Auditor) AutoFixIssues(report *Report) (*FixResult, error) {
	if report == nil {
		return nil, fmt.Errorf("report is required: %w", errdef.ErrInvalidInput)
	}
	res := &FixResult{}
	needRebuild := false
	for _, c := range report.Checks {
		for _, issue := range c.Issues {
			res.Total++
			if issue.AutoFixable {
				needRebuild = true
			}
		}
	}
	if !needRebuild {
		return res, nil
	}

	_, err := a.assetStore.RebuildIndex()
	fixed := map[string]bool{}
	for _, c := range report.Checks {
		for _, issue := range c.Issues {
			if !issue.AutoFixable {
				continue
			}
			if err != nil {
				res.Failed++
				continue
			}
			res.Fixed++
			report.AutoFixed = append(report.AutoFixed, issue.Description)
			fixed[issue.Description] = true
		}
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("index regeneration failed during auto-fix")
		return res, nil
	}

	kept := make([]string, 0, len(report.RequiresAttention))
	for _, desc := range report.RequiresAttention {
		if !fixed[desc] {
			kept = append(kept, desc)
		}
	}
	report.RequiresAttention = kept
	if report.ReportFile != "" {
		if werr := layout.WriteJSON(layout.Path(a.root, report.ReportFile), report); werr != nil {
			a.logger.Warn().Err(werr).Msg("failed to update persisted qa report after auto-fix")
		}
	}
	return res, nil
}

// recommendationFor maps an issue type to the remediation a human should
// take. Issue types that auto-fix handles point at the auto-fix pass.
func recommendationFor(issue Issue) string {
	switch issue.Type {
	case IssueCompressionTooHigh:
		return "regenerate overly terse summaries from their raw transcripts"
	case IssueCompressionTooLow:
		return "re-run summarization on summaries that barely compress their transcript"
	case IssueDuplicateID:
		return "deduplicate memory record ids so lookups stay unambiguous"
	case IssueDuplicateEntity:
		return "merge entities that share a name"
	case IssueDanglingTaskRef:
		return "remove or re-point active tasks that reference missing backlog items"
	case IssueIndexOrphan, IssueIndexGap:
		return "run auto-fix to regenerate the attachments index from disk"
	case IssueOrphanSummary:
		return "restore the raw transcript or archive the orphaned summary"
	case IssueUnparsableLogLine:
		return "inspect the raw build log for truncated or manual writes"
	case IssueTimestampOrder:
		return "check for clock skew or reordered edits in the build log"
	case IssueUnreadableStore:
		return "run recovery before relying on this store"
	}
	return ""
}

func (a *Auditor) routeCriticals(checks []CheckResult) error {
	var recs []detect.Error
	for _, c := range checks {
		for _, issue := range c.Issues {
			if issue.Severity != errdef.SeverityCritical {
				continue
			}
			kind := errdef.KindInconsistentState
			if issue.Type == IssueUnreadableStore {
				kind = errdef.KindCorruptedData
			}
			recs = append(recs, detect.Error{
				ID:                 newIssueID(),
				Type:               kind,
				Severity:           issue.Severity,
				DetectedAt:         time.Now().UTC().Format(time.RFC3339),
				Description:        fmt.Sprintf("qa %s: %s", c.Name, issue.Description),
				AffectedComponents: []string{c.Name},
				Details:            map[string]any{"issue_type": issue.Type, "target": issue.Target},
				Status:             detect.StatusDetected,
			})
		}
	}
	if len(recs) == 0 {
		return nil
	}
	return a.det.LogErrors(recs)
}
