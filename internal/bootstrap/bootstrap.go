// Package bootstrap creates and validates the on-disk project structure.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/projectcfg"
)

// Bootstrapper creates the directory tree and seed files for a project.
type Bootstrapper struct {
	logger zerolog.Logger
}

// New creates a Bootstrapper.
func New(logger zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{logger: logger.With().Str("component", "bootstrap").Logger()}
}

// CreateStructure creates the full directory tree. Idempotent: calling it N
// times on the same root yields the same tree with no error.
func (b *Bootstrapper) CreateStructure(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create project root: %w", err)
	}
	for _, dir := range layout.RequiredDirs {
		if err := os.MkdirAll(layout.Path(root, dir), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	b.logger.Debug().Str("root", root).Msg("structure created")
	return nil
}

// InitializeFiles writes every required file with schema-valid seed content
// in one pass. All writes are staged to temporary files first and committed
// only after every staging write succeeded, so a single failure leaves no
// partially-initialized project behind.
func (b *Bootstrapper) InitializeFiles(root string, cfg *projectcfg.ProjectConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to initialize with invalid config: %w", err)
	}

	now := time.Now().UTC()
	contents := make(map[string][]byte, len(layout.RequiredFiles))
	for _, rel := range layout.RequiredFiles {
		if rel == layout.ConfigFile {
			continue
		}
		seed, ok := layout.SeedFor(rel, now)
		if !ok {
			return fmt.Errorf("no seed template for %s", rel)
		}
		contents[rel] = seed
	}
	cfgBytes, err := marshalConfig(cfg)
	if err != nil {
		return err
	}
	contents[layout.ConfigFile] = cfgBytes

	// Stage everything first.
	staged := make([]string, 0, len(contents))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}
	for rel, data := range contents {
		tmp := layout.Path(root, rel) + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			cleanup()
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}
		staged = append(staged, tmp)
	}

	// Commit.
	for rel := range contents {
		path := layout.Path(root, rel)
		if err := os.Rename(path+".tmp", path); err != nil {
			cleanup()
			return fmt.Errorf("failed to commit %s: %w", rel, err)
		}
	}

	b.logger.Info().Str("root", root).Int("files", len(contents)).Msg("project files initialized")
	return nil
}

// ValidateStructure returns the relative paths of missing required
// directories and files. An empty list means the structure is complete.
func (b *Bootstrapper) ValidateStructure(root string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			missing := append([]string{}, layout.RequiredDirs...)
			return append(missing, layout.RequiredFiles...), nil
		}
		return nil, fmt.Errorf("failed to stat project root: %w", err)
	}

	var missing []string
	for _, dir := range layout.RequiredDirs {
		info, err := os.Stat(layout.Path(root, dir))
		if err != nil || !info.IsDir() {
			missing = append(missing, dir)
		}
	}
	for _, file := range layout.RequiredFiles {
		info, err := os.Stat(layout.Path(root, file))
		if err != nil || info.IsDir() {
			missing = append(missing, file)
		}
	}
	return missing, nil
}

// Node is one element of the read-only tree description returned by GetTree.
type Node struct {
	Name     string  `json:"name"`
	Dir      bool    `json:"dir"`
	Size     int64   `json:"size,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// GetTree returns a nested description of the current layout for diagnostics.
func (b *Bootstrapper) GetTree(root string) (*Node, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	return buildNode(root, filepath.Base(root), info)
}

func buildNode(path, name string, info os.FileInfo) (*Node, error) {
	node := &Node{Name: name, Dir: info.IsDir()}
	if !info.IsDir() {
		node.Size = info.Size()
		return node, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		childInfo, err := e.Info()
		if err != nil {
			continue
		}
		child, err := buildNode(filepath.Join(path, e.Name()), e.Name(), childInfo)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func marshalConfig(cfg *projectcfg.ProjectConfig) ([]byte, error) {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return append(b, '\n'), nil
}
