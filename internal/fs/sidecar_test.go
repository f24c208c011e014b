package fs

import (
	"path/filepath"
	"testing"

	"github.com/huxgo/kernel/internal/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidecarRoundTripsThroughYAML(t *testing.T) {
	fsys, _ := newTestFS(t)
	s := SidecarFromSuperblock(fsys.Super)

	path := filepath.Join(t.TempDir(), "disk.sb.yaml")
	require.NoError(t, WriteSidecarFile(path, s))

	got, err := ReadSidecarFile(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.EqualValues(t, TotalBlocks, got.TotalBlocks)
	assert.EqualValues(t, MaxInodes, got.InodeCount)
	assert.EqualValues(t, block.Size, got.BlockSize)
}
