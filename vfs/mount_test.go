package vfs_test

import (
	"encoding/binary"
	"testing"

	"github.com/kernelkit/fat32fs/blockio"
	"github.com/kernelkit/fat32fs/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func TestMountComputesLayoutFromBPB(t *testing.T) {
	root, _ := mountTestVolume(t)

	mount, ok := root.Kind.(*vfs.MountState)
	require.True(t, ok)
	assert.EqualValues(t, 1, mount.PartitionOffset)
	assert.EqualValues(t, 2, mount.FATLBA)
	assert.EqualValues(t, 3, mount.ClusterLBA)
	assert.EqualValues(t, 16, mount.TotalClusters)
	assert.True(t, root.Attributes.IsDirectory())
	assert.Empty(t, root.Children)
}

func TestMountCanonicalScenarioLBAs(t *testing.T) {
	// partition @2048, reserved=32, numFATs=2, sectorsPerFAT=1008
	// => fat_lba=2080, cluster_lba=4096
	layout := volumeLayout{
		partitionOffsetSectors: 2048,
		reservedSectors:        32,
		numFATs:                2,
		sectorsPerFAT:          1008,
		sectorsPerCluster:      blockio.SectorsPerBuffer,
		rootCluster:            2,
		totalClusters:          4,
	}
	image := buildImage(t, layout)
	device := blockio.NewDevice(bytesextra.NewReadWriteSeeker(image))

	root, err := vfs.Mount(device, vfs.DefaultMountOptions())
	require.Nil(t, err)

	mount, ok := root.Kind.(*vfs.MountState)
	require.True(t, ok)
	assert.EqualValues(t, 2080, mount.FATLBA)
	assert.EqualValues(t, 4096, mount.ClusterLBA)
}

func TestMountRejectsNilDevice(t *testing.T) {
	_, err := vfs.Mount(nil, vfs.DefaultMountOptions())
	require.NotNil(t, err)
}

func TestMountPopulatesChildrenFromRootDirectory(t *testing.T) {
	layout := defaultLayout()
	image := buildImage(t, layout)

	// Write one occupied entry ("HELLO.TXT") into the root directory
	// cluster before mounting, so the walker has something to find.
	clusterLBA := layout.partitionOffsetSectors + uint32(layout.reservedSectors) +
		uint32(layout.numFATs)*layout.sectorsPerFAT
	rootDirOffset := uint64(clusterLBA) * blockio.SectorSize
	copy(image[rootDirOffset:], []byte("HELLO   TXT"))
	binary.LittleEndian.PutUint32(image[rootDirOffset+28:], 5) // file size

	device := blockio.NewDevice(bytesextra.NewReadWriteSeeker(image))
	root, err := vfs.Mount(device, vfs.DefaultMountOptions())
	require.Nil(t, err)

	require.Len(t, root.Children, 1)
	assert.Equal(t, "HELLO.TXT", root.Children[0].Name)
	assert.EqualValues(t, 5, root.Children[0].Length)
}
