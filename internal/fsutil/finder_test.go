package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestFindFilesByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.hcl"))
	writeFile(t, filepath.Join(dir, "nested", "b.hcl"))
	writeFile(t, filepath.Join(dir, "c.txt"))

	files, err := FindFilesByExtension(dir, ".hcl")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.hcl"),
		filepath.Join(dir, "nested", "b.hcl"),
	}, files)
}

func TestFindRegularFiles_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "g1.png"))
	writeFile(t, filepath.Join(dir, "sub", "g2.png"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0o755))

	files, err := FindRegularFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "g1.png"),
		filepath.Join(dir, "sub", "g2.png"),
	}, files)
}

func TestFindRegularFiles_FollowsFileSymlinks(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"))
	writeFile(t, filepath.Join(outside, "shared.png"))
	require.NoError(t, os.MkdirAll(filepath.Join(outside, "set"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(outside, "shared.png"), filepath.Join(dir, "b.png")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "set"), filepath.Join(dir, "linked_dir")))

	files, err := FindRegularFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
	}, files)
}

func TestFindRegularFiles_DanglingSymlink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone.png"), filepath.Join(dir, "link.png")))

	_, err := FindRegularFiles(dir)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "here"))

	ok, err := Exists(filepath.Join(dir, "here"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Exists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRelSlash(t *testing.T) {
	rel, err := RelSlash("/work", "/work/grids/sub/g.png")
	require.NoError(t, err)
	require.Equal(t, "grids/sub/g.png", rel)

	_, err = RelSlash("/work", "/elsewhere/g.png")
	require.Error(t, err)
}
