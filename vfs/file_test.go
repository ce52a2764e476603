package vfs_test

import (
	"testing"

	"github.com/kernelkit/fat32fs/pagecache"
	"github.com/kernelkit/fat32fs/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	root, _ := mountTestVolume(t)

	node, err := vfs.CreateNode(root, "DATA.TXT", false)
	require.Nil(t, err)
	require.Nil(t, vfs.Open(node))

	payload := []byte("hello, fat32")
	n, werr := vfs.Write(node, 0, payload)
	require.Nil(t, werr)
	assert.Equal(t, len(payload), n)
	assert.EqualValues(t, len(payload), node.Length)

	dst := make([]byte, len(payload))
	n, rerr := vfs.Read(node, 0, uint32(len(payload)), dst)
	require.Nil(t, rerr)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, dst)
}

func TestWriteAcrossClusterBoundaryExtendsLayout(t *testing.T) {
	root, _ := mountTestVolume(t)

	node, err := vfs.CreateNode(root, "BIG.TXT", false)
	require.Nil(t, err)
	require.Nil(t, vfs.Open(node))

	payload := make([]byte, pagecache.BufferSize+10)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, werr := vfs.Write(node, 0, payload)
	require.Nil(t, werr)
	assert.Equal(t, len(payload), n)

	fs, ok := node.File()
	require.True(t, ok)
	assert.Len(t, fs.Layout, 2, "write spanning two clusters should extend the layout")

	dst := make([]byte, len(payload))
	n, rerr := vfs.Read(node, 0, uint32(len(payload)), dst)
	require.Nil(t, rerr)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, dst)
}

func TestWriteMarksPagesDirtyAndSyncClearsThem(t *testing.T) {
	root, _ := mountTestVolume(t)

	node, err := vfs.CreateNode(root, "DIRTY.TXT", false)
	require.Nil(t, err)
	require.Nil(t, vfs.Open(node))

	_, werr := vfs.Write(node, 0, []byte("x"))
	require.Nil(t, werr)

	mount := node.Mount
	assert.True(t, mount.Cache.IsPageDirty(node.GFD, 0))

	require.Nil(t, vfs.Sync(node, 1, 0))
	assert.False(t, mount.Cache.IsPageDirty(node.GFD, 0))
}

func TestReadOnUnopenedNodeFails(t *testing.T) {
	root, _ := mountTestVolume(t)

	node, err := vfs.CreateNode(root, "NOTOPEN.TXT", false)
	require.Nil(t, err)

	dst := make([]byte, 4)
	_, rerr := vfs.Read(node, 0, 4, dst)
	require.NotNil(t, rerr)
}

func TestZeroByteFileRoundTrip(t *testing.T) {
	root, _ := mountTestVolume(t)

	node, err := vfs.CreateNode(root, "EMPTY.TXT", false)
	require.Nil(t, err)
	require.Nil(t, vfs.Open(node))

	n, rerr := vfs.Read(node, 0, 0, nil)
	require.Nil(t, rerr)
	assert.Equal(t, 0, n)
	assert.EqualValues(t, 0, node.Length)
}
