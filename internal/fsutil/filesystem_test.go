package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBounded(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/runs/a.fcs", []byte("0123456789"), 0o644))

	data, err := ReadBounded(mfs, "/runs/a.fcs", 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = ReadBounded(mfs, "/runs/a.fcs", 9)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = ReadBounded(mfs, "/runs/missing.fcs", 100)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ReadBounded(mfs, "/runs", 100)
	assert.Error(t, err)
}

func TestReadBoundedOS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.fcs")
	require.NoError(t, os.WriteFile(path, []byte("FCS3.1"), 0o644))

	data, err := ReadBounded(OSFileSystem{}, path, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "FCS3.1", string(data))

	_, err = ReadBounded(OSFileSystem{}, dir, 1<<20)
	assert.Error(t, err)
}

func TestExpandPaths(t *testing.T) {
	mfs := NewMemoryFileSystem()
	for _, name := range []string{"/d/b.fcs", "/d/a.fcs", "/d/notes.txt", "/e/c.fcs"} {
		require.NoError(t, mfs.WriteFile(name, []byte("x"), 0o644))
	}

	got, err := ExpandPaths(mfs, []string{"/e/c.fcs", "/d/*.fcs", "/d/a.fcs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/e/c.fcs", "/d/a.fcs", "/d/b.fcs"}, got)

	_, err = ExpandPaths(mfs, []string{"/x/*.fcs"})
	assert.Error(t, err)

	_, err = ExpandPaths(mfs, []string{"/d/[.fcs"})
	assert.Error(t, err)
}

func TestOSFileSystemGlob(t *testing.T) {
	dir := t.TempDir()
	fsys := OSFileSystem{}
	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "plots"), 0o755))
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, "one.fcs"), []byte("1"), 0o644))
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, "two.fcs"), []byte("2"), 0o644))

	got, err := ExpandPaths(fsys, []string{filepath.Join(dir, "*.fcs")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "one.fcs"), filepath.Join(dir, "two.fcs")}, got)

	info, err := fsys.Stat(filepath.Join(dir, "plots"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMemoryFileSystemReadWrite(t *testing.T) {
	mfs := NewMemoryFileSystem()
	payload := []byte("bead run")
	require.NoError(t, mfs.WriteFile("/cal/beads.json", payload, 0o600))

	// Stored data is a copy.
	payload[0] = 'X'
	data, err := mfs.ReadFile("/cal/../cal/beads.json")
	require.NoError(t, err)
	assert.Equal(t, "bead run", string(data))

	f, err := mfs.Open("/cal/beads.json")
	require.NoError(t, err)
	defer f.Close()
	streamed, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, streamed)

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "beads.json", info.Name())
	assert.Equal(t, int64(8), info.Size())
	assert.Equal(t, os.FileMode(0o600), info.Mode())

	_, err = mfs.Open("/cal/missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMemoryFileSystemDirs(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/out/plots/run1", 0o755))
	require.NoError(t, mfs.WriteFile("/data/a.fcs", []byte("a"), 0o644))

	for _, dir := range []string{"/out", "/out/plots", "/out/plots/run1", "/data"} {
		info, err := mfs.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
	_, err := mfs.Stat("/nowhere")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
