package assets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range layout.RequiredDirs {
		require.NoError(t, os.MkdirAll(layout.Path(root, dir), 0o755))
	}
	seed, ok := layout.SeedFor(layout.AttachmentsIndexFile, time.Now())
	require.True(t, ok)
	require.NoError(t, os.WriteFile(layout.Path(root, layout.AttachmentsIndexFile), seed, 0o644))
	return NewStore(root, nil, zerolog.Nop()), root
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStoreAsset(t *testing.T) {
	store, root := setupTestStore(t)
	src := writeSource(t, "notes.txt", "chapter outline")

	info, err := store.StoreAsset(src, "document", "session notes")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", info.Filename)
	assert.Equal(t, "assets/documents/notes.txt", info.Path)
	assert.Equal(t, "document", info.Type)
	assert.Equal(t, int64(len("chapter outline")), info.SizeBytes)
	assert.Equal(t, "session notes", info.Description)
	assert.Equal(t, "txt", info.Metadata["format"])

	copied, err := os.ReadFile(layout.Path(root, info.Path))
	require.NoError(t, err)
	assert.Equal(t, "chapter outline", string(copied))

	index, err := os.ReadFile(layout.Path(root, layout.AttachmentsIndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), "=== ASSET: notes.txt ===")
	assert.Contains(t, string(index), "Type: DOCUMENT")
	assert.Contains(t, string(index), "Path: assets/documents/notes.txt")
	assert.Contains(t, string(index), "Description: session notes")
	assert.Contains(t, string(index), "=== END ASSET ===")
}

func TestStoreAssetCollision(t *testing.T) {
	store, root := setupTestStore(t)
	src := writeSource(t, "cover.txt", "v1")

	first, err := store.StoreAsset(src, "image", "")
	require.NoError(t, err)
	assert.Equal(t, "cover.txt", first.Filename)

	second, err := store.StoreAsset(src, "image", "")
	require.NoError(t, err)
	assert.Equal(t, "cover_1.txt", second.Filename)

	third, err := store.StoreAsset(src, "image", "")
	require.NoError(t, err)
	assert.Equal(t, "cover_2.txt", third.Filename)

	for _, name := range []string{"cover.txt", "cover_1.txt", "cover_2.txt"} {
		_, err := os.Stat(layout.Path(root, layout.ImagesDir+"/"+name))
		assert.NoError(t, err)
	}
}

func TestStoreAssetRejections(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.StoreAsset(writeSource(t, "a.txt", "x"), "hologram", "")
	require.ErrorIs(t, err, errdef.ErrInvalidInput)

	_, err = store.StoreAsset(filepath.Join(t.TempDir(), "missing.txt"), "document", "")
	require.Error(t, err)
}

func TestListIndexed(t *testing.T) {
	store, _ := setupTestStore(t)

	none, err := store.ListIndexed()
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = store.StoreAsset(writeSource(t, "theme.txt", "minor key, 90 bpm"), "audio", "main theme sketch")
	require.NoError(t, err)
	_, err = store.StoreAsset(writeSource(t, "script.txt", "INT. STUDY - NIGHT"), "document", "")
	require.NoError(t, err)

	entries, err := store.ListIndexed()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "theme.txt", entries[0].Filename)
	assert.Equal(t, "audio", entries[0].Type)
	assert.Equal(t, "assets/audio/theme.txt", entries[0].Path)
	assert.Equal(t, int64(len("minor key, 90 bpm")), entries[0].SizeBytes)
	assert.Equal(t, "main theme sketch", entries[0].Description)
	assert.Equal(t, "txt", entries[0].Metadata["format"])
	assert.NotEmpty(t, entries[0].Added)

	assert.Equal(t, "script.txt", entries[1].Filename)
	assert.Empty(t, entries[1].Description)
}

func TestRebuildIndex(t *testing.T) {
	store, root := setupTestStore(t)

	_, err := store.StoreAsset(writeSource(t, "kept.txt", "stays"), "document", "kept on purpose")
	require.NoError(t, err)
	_, err = store.StoreAsset(writeSource(t, "removed.txt", "goes"), "document", "")
	require.NoError(t, err)

	// Orphan: on disk but never indexed. Gap: indexed but deleted on disk.
	orphan := layout.Path(root, layout.VideoDir+"/raw_take.txt")
	require.NoError(t, os.WriteFile(orphan, []byte("unindexed"), 0o644))
	require.NoError(t, os.Remove(layout.Path(root, layout.DocumentsDir+"/removed.txt")))

	count, err := store.RebuildIndex()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entries, err := store.ListIndexed()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byPath := map[string]AssetInfo{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	kept, ok := byPath["assets/documents/kept.txt"]
	require.True(t, ok)
	assert.Equal(t, "kept on purpose", kept.Description, "rebuild keeps descriptions from the old index")

	added, ok := byPath["assets/video/raw_take.txt"]
	require.True(t, ok)
	assert.Equal(t, "video", added.Type)
	assert.Equal(t, int64(len("unindexed")), added.SizeBytes)

	_, gone := byPath["assets/documents/removed.txt"]
	assert.False(t, gone)
}

func TestRebuildIndexUnparsableOldIndex(t *testing.T) {
	store, root := setupTestStore(t)

	require.NoError(t, os.WriteFile(layout.Path(root, layout.ImagesDir+"/logo.txt"), []byte("pixels"), 0o644))
	require.NoError(t, os.WriteFile(layout.Path(root, layout.AttachmentsIndexFile), []byte("%% not an index"), 0o644))

	count, err := store.RebuildIndex()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := store.ListIndexed()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "logo.txt", entries[0].Filename)
}

func TestSummarizeAssets(t *testing.T) {
	store, root := setupTestStore(t)

	require.NoError(t, store.SummarizeAssets())
	empty, err := os.ReadFile(layout.Path(root, layout.AssetsSummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(empty), "Total assets: 0")
	assert.Contains(t, string(empty), "No assets stored yet.")

	_, err = store.StoreAsset(writeSource(t, "theme.txt", "melody"), "audio", "main theme")
	require.NoError(t, err)
	_, err = store.StoreAsset(writeSource(t, "notes.txt", "outline"), "document", "")
	require.NoError(t, err)

	require.NoError(t, store.SummarizeAssets())
	summary, err := os.ReadFile(layout.Path(root, layout.AssetsSummaryFile))
	require.NoError(t, err)
	text := string(summary)

	assert.True(t, strings.HasPrefix(text, "ASSETS SUMMARY"))
	assert.Contains(t, text, "Total assets: 2")
	assert.Contains(t, text, "--- AUDIO (1,")
	assert.Contains(t, text, "--- DOCUMENTS (1,")
	assert.NotContains(t, text, "--- IMAGES")
	assert.Contains(t, text, "theme.txt")
	assert.Contains(t, text, "main theme")

	// Audio section comes before documents regardless of insertion order.
	assert.Less(t, strings.Index(text, "--- AUDIO"), strings.Index(text, "--- DOCUMENTS"))
}
