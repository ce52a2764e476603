package vfs

import (
	"encoding/binary"

	"github.com/kernelkit/fat32fs/attrs"
	"github.com/kernelkit/fat32fs/blockio"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/fat"
	"github.com/kernelkit/fat32fs/gft"
	"github.com/kernelkit/fat32fs/pagecache"
)

// mbrPartitionEntryOffset is the offset of the primary partition's table
// entry within sector 0, per the standard MBR layout.
const mbrPartitionEntryOffset = 0x1BE

// bpbOffsets are the byte offsets of the BPB/FAT32-extension fields this
// driver needs, within the volume-id sector.
const (
	bpbBytesPerSector    = 11
	bpbSectorsPerCluster = 13
	bpbReservedSectors   = 14
	bpbNumFATs           = 16
	bpbTotalSectors32    = 32
	bpbSectorsPerFAT32   = 36
	bpbRootCluster       = 44
)

// MountOptions configures a Mount call. NumCacheBuffers sizes the page
// cache's buffer pool, kept as a separate options struct rather than an
// argument on Mount itself.
type MountOptions struct {
	NumCacheBuffers uint32
}

// DefaultMountOptions gives a page cache large enough for a handful of
// concurrently open files without tuning.
func DefaultMountOptions() MountOptions {
	return MountOptions{NumCacheBuffers: 64}
}

// Mount reads the MBR, reads the volume-id BPB, computes the FAT and
// cluster LBAs, creates the mount node and registers its root directory in
// the GFT, then walks the root directory tree.
func Mount(device *blockio.Device, opts MountOptions) (*Node, errs.DriverError) {
	if device == nil {
		return nil, errs.New(errs.ErrBadArguments).WithMessage("mount: nil device")
	}

	var mbr [blockio.BufferSize]byte
	if err := device.Read4K(0, mbr[:]); err != nil {
		return nil, err
	}
	partitionOffset := binary.LittleEndian.Uint32(mbr[mbrPartitionEntryOffset+8 : mbrPartitionEntryOffset+12])

	var bpb [blockio.BufferSize]byte
	if err := device.Read4K(partitionOffset, bpb[:]); err != nil {
		return nil, err
	}

	reservedSectors := uint32(binary.LittleEndian.Uint16(bpb[bpbReservedSectors : bpbReservedSectors+2]))
	numFATs := uint32(bpb[bpbNumFATs])
	sectorsPerFAT := binary.LittleEndian.Uint32(bpb[bpbSectorsPerFAT32 : bpbSectorsPerFAT32+4])
	rootCluster := ClusterID(binary.LittleEndian.Uint32(bpb[bpbRootCluster : bpbRootCluster+4]))
	sectorsPerCluster := uint32(bpb[bpbSectorsPerCluster])
	totalSectors := binary.LittleEndian.Uint32(bpb[bpbTotalSectors32 : bpbTotalSectors32+4])

	fatLBA := partitionOffset + reservedSectors
	clusterLBA := fatLBA + numFATs*sectorsPerFAT

	totalClusters := uint32(0)
	if sectorsPerCluster > 0 && totalSectors > clusterLBA {
		totalClusters = (totalSectors - clusterLBA) / sectorsPerCluster
	}

	table := gft.New()
	cache := pagecache.New(opts.NumCacheBuffers, table)

	mount := &MountState{
		PartitionOffset:     partitionOffset,
		FATLBA:              fatLBA,
		ClusterLBA:          clusterLBA,
		RootDirFirstCluster: rootCluster,
		TotalClusters:       totalClusters,
		Device:              device,
		Cache:               cache,
		GFT:                 table,
		Layout:              []ClusterID{rootCluster},
	}

	root := &Node{
		Name:       "",
		Attributes: attrs.Read | attrs.Write | attrs.Directory,
		Ops:        &MountOperations,
		Kind:       mount,
		Mount:      mount,
	}

	mount.RootGFD = table.Insert(root)
	root.GFD = mount.RootGFD
	root.Opened = true

	mount.FAT = fat.NewCursor(cache, mount.RootGFD, device, fatLBA, totalClusters)
	if err := materializeLayout(root); err != nil {
		return nil, err
	}

	children, err := walkDirectory(root, mount, rootCluster)
	root.Children = children
	return root, err
}
