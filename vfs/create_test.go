package vfs_test

import (
	"testing"

	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNodeFileAppearsInParent(t *testing.T) {
	root, _ := mountTestVolume(t)

	node, err := vfs.CreateNode(root, "README.TXT", false)
	require.Nil(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "README.TXT", node.Name)
	assert.False(t, node.Attributes.IsDirectory())
	assert.Contains(t, root.Children, node)
}

func TestCreateNodeRejectsDuplicateName(t *testing.T) {
	root, _ := mountTestVolume(t)

	_, err := vfs.CreateNode(root, "A.TXT", false)
	require.Nil(t, err)

	_, err = vfs.CreateNode(root, "A.TXT", false)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrExists, err.Code())
}

func TestCreateNodeRejectsInvalidName(t *testing.T) {
	root, _ := mountTestVolume(t)

	_, err := vfs.CreateNode(root, "bad:name.txt", false)
	require.NotNil(t, err)
}

func TestCreateNodeDirectoryGetsDotEntries(t *testing.T) {
	root, _ := mountTestVolume(t)

	dir, err := vfs.CreateNode(root, "SUBDIR", true)
	require.Nil(t, err)
	require.Len(t, dir.Children, 2)
	assert.Equal(t, ".", dir.Children[0].Name)
	assert.Equal(t, "..", dir.Children[1].Name)

	ds, ok := dir.Children[1].Dir()
	require.True(t, ok)
	mount, ok := root.Kind.(*vfs.MountState)
	require.True(t, ok)
	require.NotEmpty(t, mount.Layout)
	assert.Equal(t, mount.Layout[0], ds.Layout[0])
}

func TestCreateNodeUnderSubdirectoryThenCreateAgain(t *testing.T) {
	root, _ := mountTestVolume(t)

	dir, err := vfs.CreateNode(root, "SUBDIR", true)
	require.Nil(t, err)

	_, err = vfs.CreateNode(dir, "FILE1.TXT", false)
	require.Nil(t, err)
	_, err = vfs.CreateNode(dir, "FILE2.TXT", false)
	require.Nil(t, err)

	assert.Len(t, dir.Children, 4) // ".", "..", FILE1.TXT, FILE2.TXT
}

func TestCreateDeleteCreateIsIdempotent(t *testing.T) {
	root, _ := mountTestVolume(t)

	node, err := vfs.CreateNode(root, "TEMP.TXT", false)
	require.Nil(t, err)

	require.Nil(t, vfs.DeleteNode(node))
	assert.NotContains(t, root.Children, node)

	again, err := vfs.CreateNode(root, "TEMP.TXT", false)
	require.Nil(t, err)
	assert.Equal(t, "TEMP.TXT", again.Name)
}
