package health

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/memvault/internal/bootstrap"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/layout"
	"github.com/p-blackswan/memvault/internal/projectcfg"
)

func setupProject(t *testing.T) (string, *bootstrap.Bootstrapper) {
	t.Helper()
	root := t.TempDir()
	boot := bootstrap.New(zerolog.Nop())
	require.NoError(t, boot.CreateStructure(root))
	cfg, err := projectcfg.CreateDefaultConfig("demo", projectcfg.TypeCreative, nil, projectcfg.SystemDefaults())
	require.NoError(t, err)
	require.NoError(t, boot.InitializeFiles(root, cfg))
	return root, boot
}

func TestStructureCheck(t *testing.T) {
	empty := t.TempDir()
	boot := bootstrap.New(zerolog.Nop())
	res := StructureCheck(empty, boot)(context.Background())
	assert.Equal(t, StatusDegraded, res.Status, "empty root is missing everything")
	assert.Contains(t, res.Detail, "required entries missing")

	root, boot := setupProject(t)
	check := StructureCheck(root, boot)
	assert.Equal(t, StatusOK, check(context.Background()).Status)

	require.NoError(t, os.Remove(layout.Path(root, layout.MemoryFile)))
	res = check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Detail, "1 required entries missing")
}

func TestErrorLogCheck(t *testing.T) {
	root, boot := setupProject(t)
	log := buildlog.New(root, zerolog.Nop())
	det := detect.New(root, boot, log, zerolog.Nop())
	check := ErrorLogCheck(det)

	assert.Equal(t, StatusOK, check(context.Background()).Status)

	require.NoError(t, os.Remove(layout.Path(root, layout.VariablesFile)))
	errs, err := det.DetectErrors()
	require.NoError(t, err)
	require.NoError(t, det.LogErrors(errs))

	res := check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Detail, "1 unresolved errors")

	require.NoError(t, det.UpdateErrorStatus(errs[0].ID, detect.StatusRecovered, 1))
	assert.Equal(t, StatusOK, check(context.Background()).Status)
}
