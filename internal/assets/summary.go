package assets

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/p-blackswan/memvault/internal/layout"
)

// SummarizeAssets regenerates the consolidated asset summary, grouped by
// asset type in a fixed section order. Unlike the build log this file is
// overwritten wholesale on every call.
func (s *Store) SummarizeAssets() error {
	entries, err := s.ListIndexed()
	if err != nil {
		return err
	}

	byType := map[string][]AssetInfo{}
	var totalBytes int64
	for _, e := range entries {
		byType[e.Type] = append(byType[e.Type], e)
		totalBytes += e.SizeBytes
	}

	var sb strings.Builder
	sb.WriteString("ASSETS SUMMARY\n==============\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Total assets: %d (%s)\n", len(entries), humanize.Bytes(uint64(totalBytes)))

	if len(entries) == 0 {
		sb.WriteString("\nNo assets stored yet.\n")
	}

	for _, t := range layout.AssetTypes {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		var groupBytes int64
		for _, e := range group {
			groupBytes += e.SizeBytes
		}
		heading := strings.ToUpper(path.Base(layout.AssetDir(t)))
		fmt.Fprintf(&sb, "\n--- %s (%d, %s)\n", heading, len(group), humanize.Bytes(uint64(groupBytes)))
		for _, e := range group {
			fmt.Fprintf(&sb, "%s | %s | added %s", e.Filename, humanize.Bytes(uint64(e.SizeBytes)), e.Added)
			if e.Description != "" {
				fmt.Fprintf(&sb, " | %s", e.Description)
			}
			sb.WriteByte('\n')
		}
	}

	outPath := layout.Path(s.root, layout.AssetsSummaryFile)
	if err := layout.WriteFileAtomic(outPath, []byte(sb.String())); err != nil {
		return err
	}
	if s.log != nil {
		_ = s.log.LogSummaryGeneration(layout.AssetsSummaryFile, "asset_store")
	}
	return nil
}
