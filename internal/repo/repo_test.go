package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebased/codebased/internal/codebaseerrors"
)

func TestFind_WalksUpToVCSMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	r, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, root, r.Root)
	assert.Equal(t, filepath.Join(root, PrivateDirName), r.PrivateDir)
}

func TestFind_NotInRepositoryIsFatalKind(t *testing.T) {
	root := t.TempDir()
	_, err := Find(root)
	require.Error(t, err)
	kind, ok := codebaseerrors.Of(err)
	require.True(t, ok)
	assert.Equal(t, codebaseerrors.KindNotInRepository, kind)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ".codebased.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_OverridesApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".codebased.yml")
	require.NoError(t, os.WriteFile(path, []byte("top_k: 25\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.TopK)
	assert.Equal(t, DefaultConfig().Dim, cfg.Dim)
}
