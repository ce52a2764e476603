package vfs_test

import (
	"encoding/binary"
	"testing"

	"github.com/kernelkit/fat32fs/blockio"
	"github.com/kernelkit/fat32fs/fat"
	"github.com/kernelkit/fat32fs/vfs"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// volumeLayout names the geometry a synthetic test image is built from,
// small enough to keep test images in the tens of kilobytes while still
// exercising every BPB field Mount reads.
type volumeLayout struct {
	partitionOffsetSectors uint32
	reservedSectors        uint16
	numFATs                uint8
	sectorsPerFAT          uint32
	sectorsPerCluster      uint8
	rootCluster            uint32
	totalClusters          uint32
}

func defaultLayout() volumeLayout {
	return volumeLayout{
		partitionOffsetSectors: 1,
		reservedSectors:        1,
		numFATs:                1,
		sectorsPerFAT:          1,
		sectorsPerCluster:      blockio.SectorsPerBuffer,
		rootCluster:            2,
		totalClusters:          16,
	}
}

// buildImage lays out a minimal but genuine FAT32 volume: MBR, BPB, a
// one-block FAT with the root directory's entry pre-marked EOF, and a
// zeroed (hence empty) root directory cluster.
func buildImage(t *testing.T, layout volumeLayout) []byte {
	t.Helper()

	fatLBA := layout.partitionOffsetSectors + uint32(layout.reservedSectors)
	clusterLBA := fatLBA + uint32(layout.numFATs)*layout.sectorsPerFAT
	totalSectors := clusterLBA + layout.totalClusters*uint32(layout.sectorsPerCluster)

	image := make([]byte, uint64(totalSectors)*blockio.SectorSize)

	const mbrPartitionEntryOffset = 0x1BE
	binary.LittleEndian.PutUint32(image[mbrPartitionEntryOffset+8:], layout.partitionOffsetSectors)

	bpb := image[uint64(layout.partitionOffsetSectors)*blockio.SectorSize:]
	binary.LittleEndian.PutUint16(bpb[11:], blockio.SectorSize)
	bpb[13] = layout.sectorsPerCluster
	binary.LittleEndian.PutUint16(bpb[14:], layout.reservedSectors)
	bpb[16] = layout.numFATs
	binary.LittleEndian.PutUint32(bpb[32:], totalSectors)
	binary.LittleEndian.PutUint32(bpb[36:], layout.sectorsPerFAT)
	binary.LittleEndian.PutUint32(bpb[44:], layout.rootCluster)

	fatBlock := image[uint64(fatLBA)*blockio.SectorSize:]
	// Entries 0 and 1 are reserved on every real FAT32 volume (media
	// descriptor and an EOF sentinel); a correctly formatted volume never
	// has them at the free value 0, so ReserveFirstCluster never considers
	// them, same as the source.
	binary.LittleEndian.PutUint32(fatBlock[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatBlock[4:], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fatBlock[layout.rootCluster*4:], fat.EOF)

	require.EqualValues(t, fatLBA+uint32(layout.numFATs)*layout.sectorsPerFAT, clusterLBA)
	return image
}

// mountTestVolume builds and mounts a fresh synthetic image, returning the
// root node and the image bytes backing it (for assertions that peek at
// the raw disk).
func mountTestVolume(t *testing.T) (*vfs.Node, []byte) {
	t.Helper()

	image := buildImage(t, defaultLayout())
	device := blockio.NewDevice(bytesextra.NewReadWriteSeeker(image))

	root, err := vfs.Mount(device, vfs.DefaultMountOptions())
	require.Nil(t, err)
	require.NotNil(t, root)
	return root, image
}
