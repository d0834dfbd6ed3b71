package staging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAccumulatesAndBoundsCapacity(t *testing.T) {
	dir := t.TempDir()
	r, recovered, err := Open(filepath.Join(dir, "region.bin"), 16)
	require.NoError(t, err)
	assert.False(t, recovered)
	defer r.Close()

	n, err := r.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(r.Bytes()))
	assert.Equal(t, 11, r.Remaining())

	_, err = r.Write([]byte("this is far too long to fit"))
	assert.Error(t, err)
}

func TestResetRewindsCursor(t *testing.T) {
	dir := t.TempDir()
	r, _, err := Open(filepath.Join(dir, "region.bin"), 16)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, r.Reset())
	assert.Equal(t, 0, r.Len())
}

func TestOpenRecoversCursorAfterRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.bin")

	r1, recovered1, err := Open(path, 16)
	require.NoError(t, err)
	assert.False(t, recovered1)
	_, err = r1.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, r1.Close())

	r2, recovered2, err := Open(path, 16)
	require.NoError(t, err)
	defer r2.Close()
	assert.True(t, recovered2)
	assert.Equal(t, 3, r2.Len())
	assert.Equal(t, "abc", string(r2.Bytes()))
}
