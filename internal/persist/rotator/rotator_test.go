package rotator

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatorRollsOverOldestSlot(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "hilog")

	r := New(base, 1024, 3, ".log", 1)
	require.NoError(t, r.Init())
	defer r.Close()

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Input([]byte("chunk")))
		r.FinishInput()
	}

	// fileNum=3: slot 0 should have rolled out, leaving slots 0..2 holding
	// the last three chunks written (originally slots 1,2,3).
	for i := 0; i < 3; i++ {
		_, err := os.Stat(base + "." + strconv.Itoa(i) + ".log")
		assert.NoError(t, err)
	}
	_, err := os.Stat(base + ".3.log")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatorRecoversIndexFromSidecar(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "hilog")

	r1 := New(base, 1024, 5, ".log", 7)
	require.NoError(t, r1.Init())
	require.NoError(t, r1.Input([]byte("a")))
	r1.FinishInput()
	require.NoError(t, r1.Input([]byte("b")))
	r1.FinishInput()
	r1.Close()

	r2 := New(base, 1024, 5, ".log", 7)
	require.NoError(t, r2.Init())
	defer r2.Close()
	require.NoError(t, r2.Input([]byte("c")))

	data, err := os.ReadFile(base + ".2.log")
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))
}
