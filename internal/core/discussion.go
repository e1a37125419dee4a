package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

// Message is one turn of a recorded discussion.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Summaries target roughly this fraction of the raw transcript size.
const summaryTargetRatio = 0.15

// RecordDiscussion persists a conversation transcript under
// assistant/discussions_raw and, when auto-summarize is on and the raw file
// crosses the configured threshold, writes an extractive summary alongside
// it. Returns the session id.
func (m *Manager) RecordDiscussion(messages []Message, sessionID string) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to record: %w", errdef.ErrInvalidInput)
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for i := range messages {
		if messages[i].Timestamp == "" {
			messages[i].Timestamp = now
		}
	}

	rel := layout.DiscussionsRawDir + "/discussion_" + sessionID + ".json"
	path := layout.Path(m.root, rel)
	if err := layout.WriteJSON(path, messages); err != nil {
		return "", fmt.Errorf("failed to record discussion: %w", err)
	}
	if err := m.log.LogAction(buildlog.ActionDiscussionRecorded, []string{rel}, map[string]string{
		"session_id": sessionID,
		"messages":   fmt.Sprintf("%d", len(messages)),
	}, "assistant"); err != nil {
		m.logger.Warn().Err(err).Msg("failed to log discussion")
	}
	m.countAction(buildlog.ActionDiscussionRecorded)

	cfg := m.loadConfig()
	if cfg.MemoryConfig.AutoSummarize {
		rawSize := rawFileSize(path)
		if rawSize > int64(cfg.MemoryConfig.SummarizeThresholdKB)*1024 {
			if err := m.summarizeDiscussion(messages, sessionID, rawSize); err != nil {
				m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("summarization failed")
			}
		}
	}
	return sessionID, nil
}

func (m *Manager) summarizeDiscussion(messages []Message, sessionID string, rawSize int64) error {
	summary := extractiveSummary(messages, int(float64(rawSize)*summaryTargetRatio))
	rel := layout.DiscussionsSummaryDir + "/summary_" + sessionID + ".txt"
	if err := layout.WriteFileAtomic(layout.Path(m.root, rel), []byte(summary)); err != nil {
		return err
	}
	if err := m.log.LogSummaryGeneration(rel, "summarizer"); err != nil {
		m.logger.Warn().Err(err).Msg("failed to log summary generation")
	}
	m.countAction(buildlog.ActionSummaryGeneration)
	return nil
}

// extractiveSummary picks the leading sentence of each message, longest
// messages first, until the byte budget is spent, then emits them back in
// conversation order.
func extractiveSummary(messages []Message, budget int) string {
	if budget < 64 {
		budget = 64
	}
	type candidate struct {
		order    int
		sentence string
		weight   int
	}
	cands := make([]candidate, 0, len(messages))
	for i, msg := range messages {
		s := firstSentence(msg.Content)
		if s == "" {
			continue
		}
		cands = append(cands, candidate{order: i, sentence: msg.Role + ": " + s, weight: len(msg.Content)})
	}

	// Greedy pick by message weight.
	picked := map[int]bool{}
	spent := 0
	for spent < budget {
		best := -1
		for i, c := range cands {
			if picked[c.order] {
				continue
			}
			if best == -1 || c.weight > cands[best].weight {
				best = i
			}
		}
		if best == -1 {
			break
		}
		picked[cands[best].order] = true
		spent += len(cands[best].sentence) + 1
	}

	var sb strings.Builder
	sb.WriteString("DISCUSSION SUMMARY\n")
	fmt.Fprintf(&sb, "Messages: %d\n\n", len(messages))
	for _, c := range cands {
		if picked[c.order] {
			sb.WriteString(c.sentence)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			return strings.TrimSpace(s[:i+1])
		}
	}
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

func rawFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
