package vfs

import (
	"github.com/kernelkit/fat32fs/dirent"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/fat"
)

// clusterMask keeps only the 28 bits a cluster id actually uses.
const clusterMask = 0x0FFFFFFF

// workItem is one unit of the directory walker's worklist: a directory
// node whose own entries haven't been read yet.
type workItem struct {
	node    *Node
	cluster ClusterID
}

// walkDirectory reads root's directory tree starting at startCluster,
// populating root.Children and (iteratively, via an explicit worklist
// rather than recursion) every descendant directory's Children. One
// cluster's worth of decode failures doesn't abort the rest of the tree:
// they're collected and returned alongside whatever was successfully built.
func walkDirectory(root *Node, mount *MountState, startCluster ClusterID) ([]*Node, errs.DriverError) {
	queue := []workItem{{root, startCluster}}
	var failures []error

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		children, err := readDirectoryLevel(item.node, mount, item.cluster)
		item.node.Children = children
		if err != nil {
			failures = append(failures, err)
		}

		for _, child := range children {
			if ds, ok := child.Dir(); ok && !child.IsDotOrDotDot() && len(ds.Layout) > 0 {
				queue = append(queue, workItem{child, ds.Layout[0]})
			}
		}
	}

	if combined := errs.Combine(failures...); combined != nil {
		return root.Children, errs.ErrGeneral.WrapError(combined)
	}
	return root.Children, nil
}

// readDirectoryLevel reads one directory's full cluster chain and returns
// its immediate children (not recursing into subdirectories, that is the
// worklist's job). The FAT lookup for the next cluster happens before the
// current cluster's buffer is released.
func readDirectoryLevel(parent *Node, mount *MountState, startCluster ClusterID) ([]*Node, errs.DriverError) {
	var children []*Node
	offset := startCluster

	for uint32(offset) < fat.EOF {
		buf, err := mount.Cache.ReserveBuffer(mount.RootGFD, uint32(offset))
		if err != nil {
			return children, err
		}

		if err := mount.Device.ReadByCluster(mount.ClusterLBA, uint32(offset), buf); err != nil {
			mount.Cache.ReleaseBuffer(mount.RootGFD, uint32(offset))
			return children, err
		}

	scanCluster:
		for slot := 0; slot < dirent.EntriesPerCluster; slot++ {
			i := slot * dirent.Size
			raw := dirent.DecodeRaw(buf[i : i+dirent.Size])

			switch dirent.SlotState(raw) {
			case dirent.StateEnd:
				break scanCluster
			case dirent.StateDeleted:
				continue
			}
			if raw.Attributes&dirent.AttrVolumeID != 0 {
				continue
			}

			name := dirent.DecodeName(raw)
			nodeAttrs := dirent.ToAttributes(raw.Attributes)
			firstCluster := ClusterID(raw.Cluster() & clusterMask)

			node := &Node{
				Name:       name,
				Attributes: nodeAttrs,
				Length:     raw.FileSize,
				Parent:     parent,
				Mount:      mount,
			}

			meta := MetadataRef{Cluster: offset, Index: slot}
			node.Ops = &FileOperations
			if nodeAttrs.IsDirectory() {
				node.Kind = DirState{Meta: meta, Layout: []ClusterID{firstCluster}}
			} else {
				node.Kind = FileState{Meta: meta, Layout: []ClusterID{firstCluster}}
			}

			children = append(children, node)
		}

		temp := offset
		next, nextErr := mount.FAT.NextCluster(uint32(offset))
		mount.Cache.ReleaseBuffer(mount.RootGFD, uint32(temp))
		if nextErr != nil {
			return children, nextErr
		}
		offset = ClusterID(next)
	}

	return children, nil
}
