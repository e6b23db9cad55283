package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	target := filepath.Join(root, "a", "needle")
	require.NoError(t, os.WriteFile(target, nil, 0o644))

	require.Equal(t, target, FindUp("needle", nested))
}

func TestFindUpMissing(t *testing.T) {
	require.Equal(t, "", FindUp("definitely-not-present-xyz", t.TempDir()))
}

func TestFindUpSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "needle", "deeper")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	require.Equal(t, "", FindUp("needle", filepath.Join(root, "needle")))
}
