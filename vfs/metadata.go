package vfs

import (
	"github.com/kernelkit/fat32fs/dirent"
	"github.com/kernelkit/fat32fs/errs"
)

// rootClusterBuffer returns the cached (or newly cached) directory cluster
// at the given cluster id, reserved under the mount's root GFD the same way
// the walker and FAT cursor borrow scratch space. Used for everything that
// touches directory-entry bytes rather than file data: metadata writeback,
// free-slot scanning, and "." / ".." initialization. Callers release the
// buffer once they're done with it, the same discipline readDirectoryLevel
// uses, so a long session touching many directories doesn't pin a page per
// cluster visited.
func rootClusterBuffer(mount *MountState, cluster ClusterID) ([]byte, errs.DriverError) {
	if buf := mount.Cache.GetBuffer(mount.RootGFD, uint32(cluster)); buf != nil {
		return buf, nil
	}

	buf, err := mount.Cache.ReserveBuffer(mount.RootGFD, uint32(cluster))
	if err != nil {
		return nil, err
	}
	if err := mount.Device.ReadByCluster(mount.ClusterLBA, uint32(cluster), buf); err != nil {
		mount.Cache.ReleaseBuffer(mount.RootGFD, uint32(cluster))
		return nil, err
	}
	return buf, nil
}

// metadataBuffer returns the cached directory cluster holding n's 32-byte
// entry.
func metadataBuffer(n *Node) ([]byte, errs.DriverError) {
	return rootClusterBuffer(n.Mount, n.meta().Cluster)
}

// encodeEntryForNode renders n's current name/attributes/length/first
// cluster into a RawEntry, matching
// fat_fs_create_short_entry_from_node's field assignments.
func encodeEntryForNode(n *Node) (dirent.RawEntry, errs.DriverError) {
	var entry dirent.RawEntry

	base, ext, err := dirent.EncodeName(n.Name)
	if err != nil {
		return entry, err
	}
	entry.Name = base
	entry.Extension = ext
	entry.Attributes = dirent.FromAttributes(n.Attributes)
	entry.FileSize = n.Length

	layout := n.layout()
	if len(layout) > 0 {
		entry.SetCluster(uint32(layout[0]))
	}
	return entry, nil
}

// writeBackMetadata re-encodes n's directory entry and writes it into its
// parent's metadata cluster, both in the cache buffer and through to disk.
// The buffer is released once the write-back is durable: directory-entry
// clusters aren't kept pinned in the page cache between operations, unlike
// open file data.
func writeBackMetadata(n *Node) errs.DriverError {
	meta := n.meta()

	buf, err := metadataBuffer(n)
	if err != nil {
		return err
	}
	defer n.Mount.Cache.ReleaseBuffer(n.Mount.RootGFD, uint32(meta.Cluster))

	entry, err := encodeEntryForNode(n)
	if err != nil {
		return err
	}

	copy(buf[meta.Index*dirent.Size:(meta.Index+1)*dirent.Size], dirent.EncodeRaw(entry))
	return n.Mount.Device.WriteByCluster(n.Mount.ClusterLBA, uint32(meta.Cluster), buf)
}
