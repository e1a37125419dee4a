package assets

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/p-blackswan/memvault/internal/layout"
)

const (
	indexHeader = `ATTACHMENTS INDEX
Regenerated by memvault. Do not edit by hand.
=================================================

`
	entryOpen  = "=== ASSET: "
	entryClose = "=== END ASSET ==="
)

// appendIndexEntry appends one clearly delimited block to the attachments
// index. The index is regenerated wholesale by RebuildIndex, never hand-edited.
func (s *Store) appendIndexEntry(info *AssetInfo) error {
	path := layout.Path(s.root, layout.AttachmentsIndexFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open attachments index: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(formatIndexEntry(info)); err != nil {
		return fmt.Errorf("failed to append index entry: %w", err)
	}
	return nil
}

func formatIndexEntry(info *AssetInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s ===\n", entryOpen, info.Filename)
	fmt.Fprintf(&sb, "Type: %s\n", strings.ToUpper(info.Type))
	fmt.Fprintf(&sb, "Path: %s\n", info.Path)
	fmt.Fprintf(&sb, "Size: %d bytes (%s)\n", info.SizeBytes, humanize.Bytes(uint64(info.SizeBytes)))
	fmt.Fprintf(&sb, "Added: %s\n", info.Added)
	desc := info.Description
	if desc == "" {
		desc = "-"
	}
	fmt.Fprintf(&sb, "Description: %s\n", desc)
	if len(info.Metadata) > 0 {
		keys := make([]string, 0, len(info.Metadata))
		for k := range info.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+info.Metadata[k])
		}
		fmt.Fprintf(&sb, "Metadata: %s\n", strings.Join(pairs, "; "))
	}
	sb.WriteString(entryClose + "\n\n")
	return sb.String()
}

// ListIndexed parses the attachments index back into structured entries
// without mutating it.
func (s *Store) ListIndexed() ([]AssetInfo, error) {
	f, err := os.Open(layout.Path(s.root, layout.AttachmentsIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open attachments index: %w", err)
	}
	defer f.Close()

	var entries []AssetInfo
	var cur *AssetInfo
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		switch {
		case strings.HasPrefix(line, entryOpen):
			name := strings.TrimSuffix(strings.TrimPrefix(line, entryOpen), " ===")
			cur = &AssetInfo{Filename: name}
		case line == entryClose:
			if cur != nil {
				entries = append(entries, *cur)
				cur = nil
			}
		case cur != nil:
			parseIndexField(cur, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan attachments index: %w", err)
	}
	return entries, nil
}

func parseIndexField(info *AssetInfo, line string) {
	key, value, ok := strings.Cut(line, ": ")
	if !ok {
		return
	}
	switch key {
	case "Type":
		info.Type = strings.ToLower(value)
	case "Path":
		info.Path = value
	case "Size":
		var n int64
		if _, err := fmt.Sscanf(value, "%d bytes", &n); err == nil {
			info.SizeBytes = n
		}
	case "Added":
		info.Added = value
	case "Description":
		if value != "-" {
			info.Description = value
		}
	case "Metadata":
		md := map[string]string{}
		for _, pair := range strings.Split(value, "; ") {
			if k, v, ok := strings.Cut(pair, "="); ok {
				md[k] = v
			}
		}
		if len(md) > 0 {
			info.Metadata = md
		}
	}
}

// RebuildIndex regenerates the attachments index from the files actually on
// disk. Descriptions and timestamps surviving in a parseable old index are
// carried over; otherwise the file's modification time is used.
func (s *Store) RebuildIndex() (int, error) {
	old := map[string]AssetInfo{}
	if prior, err := s.ListIndexed(); err == nil {
		for _, e := range prior {
			old[e.Path] = e
		}
	}

	onDisk, err := s.listOnDisk()
	if err != nil {
		return 0, err
	}

	var sb strings.Builder
	sb.WriteString(indexHeader)
	count := 0
	for _, t := range layout.AssetTypes {
		paths := onDisk[t]
		sort.Strings(paths)
		for _, rel := range paths {
			full := layout.Path(s.root, rel)
			stat, err := os.Stat(full)
			if err != nil {
				continue
			}
			info := AssetInfo{
				Filename:  filepath.Base(rel),
				Path:      rel,
				Type:      t,
				SizeBytes: stat.Size(),
				Added:     stat.ModTime().UTC().Format(time.RFC3339),
				Metadata:  extractMetadata(full, t, s.logger),
			}
			if prior, ok := old[rel]; ok {
				info.Description = prior.Description
				if prior.Added != "" {
					info.Added = prior.Added
				}
			}
			sb.WriteString(formatIndexEntry(&info))
			count++
		}
	}

	path := layout.Path(s.root, layout.AttachmentsIndexFile)
	if err := layout.WriteFileAtomic(path, []byte(sb.String())); err != nil {
		return 0, err
	}
	s.logger.Info().Int("entries", count).Msg("attachments index rebuilt")
	return count, nil
}
