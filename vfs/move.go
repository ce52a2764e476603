package vfs

import (
	"github.com/kernelkit/fat32fs/dirent"
	"github.com/kernelkit/fat32fs/errs"
)

// MoveNode moves node within the same filesystem only. It copies node's
// directory entry into a free slot under newParent, marks the old slot
// deleted the same way DeleteNode does, and re-parents node in the
// in-memory tree. node's data clusters are never touched, only the
// 32-byte entry describing it moves.
func MoveNode(node *Node, newParent *Node) errs.DriverError {
	if node == nil || newParent == nil || node.Parent == nil {
		return errs.New(errs.ErrBadArguments)
	}
	if _, ok := newParent.Dir(); !ok {
		if _, ok := newParent.Kind.(*MountState); !ok {
			return errs.New(errs.ErrNotADirectory)
		}
	}
	if node.Mount != newParent.Mount {
		return errs.New(errs.ErrNotImplemented).WithMessage("cross-filesystem move")
	}

	if err := materializeLayout(newParent); err != nil {
		return err
	}
	for _, existing := range newParent.Children {
		if existing.Name == node.Name {
			return errs.New(errs.ErrExists)
		}
	}

	entry, err := encodeEntryForNode(node)
	if err != nil {
		return err
	}

	if err := markEntryDeleted(node); err != nil {
		return err
	}

	slotCluster, slotIndex, err := freeSlot(newParent)
	if err != nil && err.Code() == errs.ErrNoSpace {
		slotCluster, slotIndex, err = growDirectory(newParent)
	}
	if err != nil {
		return err
	}

	buf, err := rootClusterBuffer(newParent.Mount, slotCluster)
	if err != nil {
		return err
	}
	copy(buf[slotIndex*dirent.Size:(slotIndex+1)*dirent.Size], dirent.EncodeRaw(entry))
	writeErr := newParent.Mount.Device.WriteByCluster(newParent.Mount.ClusterLBA, uint32(slotCluster), buf)
	newParent.Mount.Cache.ReleaseBuffer(newParent.Mount.RootGFD, uint32(slotCluster))
	if writeErr != nil {
		return writeErr
	}

	node.setMeta(MetadataRef{Cluster: slotCluster, Index: slotIndex})

	oldParent := node.Parent
	for i, child := range oldParent.Children {
		if child == node {
			oldParent.Children = append(oldParent.Children[:i], oldParent.Children[i+1:]...)
			break
		}
	}
	node.Parent = newParent
	newParent.Children = append(newParent.Children, node)

	return nil
}
