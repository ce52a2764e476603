package vfs

import (
	"github.com/kernelkit/fat32fs/dirent"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/fat"
)

// DeleteNode refuses a directory that still has real children, marks its
// directory-entry slot deleted, zeroes every cluster in its chain, releases
// any buffered pages, and detaches it from its parent's in-memory tree.
func DeleteNode(node *Node) errs.DriverError {
	if node == nil || node.Parent == nil {
		return errs.New(errs.ErrBadArguments).WithMessage("cannot delete the mount root")
	}

	if ds, ok := node.Dir(); ok {
		_ = ds
		realChildren := 0
		for _, child := range node.Children {
			if !child.IsDotOrDotDot() {
				realChildren++
			}
		}
		if realChildren > 0 {
			return errs.New(errs.ErrBadArguments).WithMessage("directory not empty")
		}
	}

	if err := markEntryDeleted(node); err != nil {
		return err
	}

	if err := freeChain(node.Mount, node.layout()); err != nil {
		return err
	}

	if node.Opened {
		releaseAllPages(node)
		_ = node.Mount.GFT.Close(node.GFD)
		node.Opened = false
	}

	detachFromParent(node)
	return nil
}

// markEntryDeleted sets node's 32-byte entry's first byte to the deleted
// marker (0xE5), or to the end-of-directory marker (0x00) when the slot that
// follows it is itself already end-of-directory, the same "collapse the
// tombstone into the terminator" trick the source performs so a short
// directory doesn't accumulate a trail of deleted slots before its real
// terminator.
func markEntryDeleted(node *Node) errs.DriverError {
	meta := node.meta()
	buf, err := rootClusterBuffer(node.Mount, meta.Cluster)
	if err != nil {
		return err
	}
	defer node.Mount.Cache.ReleaseBuffer(node.Mount.RootGFD, uint32(meta.Cluster))

	marker := byte(0xE5)
	if meta.Index < dirent.EntriesPerCluster-1 {
		next := dirent.DecodeRaw(buf[(meta.Index+1)*dirent.Size : (meta.Index+2)*dirent.Size])
		if dirent.SlotState(next) == dirent.StateEnd {
			marker = 0x00
		}
	}
	buf[meta.Index*dirent.Size] = marker

	return node.Mount.Device.WriteByCluster(node.Mount.ClusterLBA, uint32(meta.Cluster), buf)
}

// freeChain walks layout's FAT chain, zeroing every entry it visits. It
// follows MarkCluster's return value (the entry's previous contents, i.e.
// the next cluster in the chain) rather than the caller's own layout slice,
// so a chain that diverges from what's cached in memory still gets fully
// freed.
func freeChain(mount *MountState, layout []ClusterID) errs.DriverError {
	if len(layout) == 0 {
		return nil
	}

	next := uint32(layout[0])
	for next < fat.EOF {
		prev, err := mount.FAT.MarkCluster(next, 0)
		if err != nil {
			return err
		}
		next = prev
	}
	return nil
}

// releaseAllPages drops every page this node currently has buffered, in the
// same order Sync would walk them.
func releaseAllPages(node *Node) {
	entry, err := node.Mount.GFT.Get(node.GFD)
	if err != nil {
		return
	}
	pages := make([]uint32, len(entry.Pages))
	for i, p := range entry.Pages {
		pages[i] = p.Page
	}
	for _, page := range pages {
		node.Mount.Cache.ReleaseBuffer(node.GFD, page)
	}
}

// detachFromParent removes node from its parent's in-memory child list.
func detachFromParent(node *Node) {
	parent := node.Parent
	for i, child := range parent.Children {
		if child == node {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return
		}
	}
}
