// Package assets implements type-routed asset ingestion, the LLM-parseable
// attachments index, and the consolidated asset summary.
package assets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

// AssetInfo describes one stored asset file.
type AssetInfo struct {
	Filename    string            `json:"filename"`
	Path        string            `json:"path"`
	Type        string            `json:"type"`
	SizeBytes   int64             `json:"size_bytes"`
	Added       string            `json:"added"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Store owns the assets/ tree, the attachments index, and the asset summary.
type Store struct {
	root   string
	log    *buildlog.Logger
	logger zerolog.Logger
}

// NewStore creates an asset store for a project root.
func NewStore(root string, log *buildlog.Logger, logger zerolog.Logger) *Store {
	return &Store{
		root:   root,
		log:    log,
		logger: logger.With().Str("component", "assets").Logger(),
	}
}

// StoreAsset copies the source file into the type-routed subdirectory,
// extracts whatever metadata the type allows, appends an index entry, and
// returns the populated AssetInfo. Name collisions are resolved by renaming,
// never by overwriting.
func (s *Store) StoreAsset(sourcePath, assetType, description string) (*AssetInfo, error) {
	dir := layout.AssetDir(assetType)
	if dir == "" {
		return nil, fmt.Errorf("unknown asset type %q (valid: %v): %w", assetType, layout.AssetTypes, errdef.ErrInvalidInput)
	}
	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source %s: %w", sourcePath, err)
	}
	defer src.Close()

	filename := resolveCollision(layout.Path(s.root, dir), filepath.Base(sourcePath))
	relPath := dir + "/" + filename
	destPath := layout.Path(s.root, relPath)

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", relPath, err)
	}
	size, err := io.Copy(dest, src)
	if cerr := dest.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("failed to copy asset: %w", err)
	}

	info := &AssetInfo{
		Filename:    filename,
		Path:        relPath,
		Type:        assetType,
		SizeBytes:   size,
		Added:       time.Now().UTC().Format(time.RFC3339),
		Description: description,
		Metadata:    extractMetadata(destPath, assetType, s.logger),
	}

	if err := s.appendIndexEntry(info); err != nil {
		return nil, err
	}
	if s.log != nil {
		_ = s.log.LogAssetAddition(filename, assetType, size, "asset_store")
	}
	s.logger.Info().Str("file", filename).Str("type", assetType).Int64("bytes", size).Msg("asset stored")
	return info, nil
}

// resolveCollision finds the first free filename in dir, renaming to
// name_1.ext, name_2.ext, ... when the base name is taken.
func resolveCollision(dir, name string) string {
	if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}

// listOnDisk returns the relative paths of every asset file under the
// type-routed directories, grouped by asset type.
func (s *Store) listOnDisk() (map[string][]string, error) {
	out := make(map[string][]string, len(layout.AssetTypes))
	for _, t := range layout.AssetTypes {
		dir := layout.AssetDir(t)
		entries, err := os.ReadDir(layout.Path(s.root, dir))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			out[t] = append(out[t], dir+"/"+e.Name())
		}
	}
	return out, nil
}
