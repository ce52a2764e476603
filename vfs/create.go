package vfs

import (
	"github.com/kernelkit/fat32fs/attrs"
	"github.com/kernelkit/fat32fs/dirent"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/fat"
	"github.com/kernelkit/fat32fs/pagecache"
)

// validateName checks name (with its dot, if any, removed) against the
// 8.3 short-name rules, the same check CreateNode's step 1 performs before
// touching any on-disk state.
func validateName(name string) errs.DriverError {
	raw := make([]byte, 0, 11)
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			continue
		}
		raw = append(raw, name[i])
	}
	if !dirent.Validate83Name(raw) {
		return errs.New(errs.ErrBadArguments).WithMessage("invalid 8.3 name")
	}
	return nil
}

// freeSlot locates the first free (StateEnd or StateDeleted) directory
// slot in dir's cluster chain, returning the cluster and 0..127 index it
// lives at.
func freeSlot(dir *Node) (ClusterID, int, errs.DriverError) {
	mount := dir.Mount
	layout := dir.layout()

	for _, cluster := range layout {
		buf, err := rootClusterBuffer(mount, cluster)
		if err != nil {
			return 0, 0, err
		}

		found := -1
		for slot := 0; slot < dirent.EntriesPerCluster; slot++ {
			raw := dirent.DecodeRaw(buf[slot*dirent.Size : (slot+1)*dirent.Size])
			state := dirent.SlotState(raw)
			if state == dirent.StateEnd || state == dirent.StateDeleted {
				found = slot
				break
			}
		}
		mount.Cache.ReleaseBuffer(mount.RootGFD, uint32(cluster))
		if found >= 0 {
			return cluster, found, nil
		}
	}

	return 0, 0, errs.New(errs.ErrNoSpace)
}

// growDirectory appends a freshly reserved, zeroed cluster to dir's own
// chain when every existing slot is occupied, returning the new cluster
// and slot 0 within it.
func growDirectory(dir *Node) (ClusterID, int, errs.DriverError) {
	mount := dir.Mount
	layout := dir.layout()
	if len(layout) == 0 {
		return 0, 0, errs.New(errs.ErrInvalidNodeStructure)
	}

	newCluster, err := mount.FAT.ReserveFirstCluster(fat.EOF)
	if err != nil {
		return 0, 0, err
	}

	tail := layout[len(layout)-1]
	if _, err := mount.FAT.MarkCluster(uint32(tail), newCluster); err != nil {
		return 0, 0, err
	}

	zero := make([]byte, pagecache.BufferSize)
	if err := mount.Device.WriteByCluster(mount.ClusterLBA, newCluster, zero); err != nil {
		return 0, 0, err
	}

	layout = append(layout, ClusterID(newCluster))
	dir.setLayout(layout)
	// The mount root has no directory entry of its own to rewrite.
	if _, isRoot := dir.Kind.(*MountState); !isRoot {
		if err := writeBackMetadata(dir); err != nil {
			return 0, 0, err
		}
	}

	return ClusterID(newCluster), 0, nil
}

// CreateNode validates the name, finds (or makes) a free directory slot,
// reserves a data cluster, builds the VFS node, and writes its 32-byte
// entry. Directories additionally get synthesized "." and ".." children
// and on-disk entries.
func CreateNode(parent *Node, name string, isDir bool) (*Node, errs.DriverError) {
	if _, ok := parent.Dir(); !ok {
		if _, ok := parent.Kind.(*MountState); !ok {
			return nil, errs.New(errs.ErrNotADirectory)
		}
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	if err := materializeLayout(parent); err != nil {
		return nil, err
	}

	for _, existing := range parent.Children {
		if existing.Name == name {
			return nil, errs.New(errs.ErrExists)
		}
	}

	slotCluster, slotIndex, err := freeSlot(parent)
	if err != nil && err.Code() == errs.ErrNoSpace {
		slotCluster, slotIndex, err = growDirectory(parent)
	}
	if err != nil {
		return nil, err
	}

	freeCluster, err := parent.Mount.FAT.ReserveFirstCluster(fat.EOF)
	if err != nil {
		return nil, err
	}

	nodeAttrs := attrs.Read | attrs.Write
	if isDir {
		nodeAttrs |= attrs.Directory
	}

	meta := MetadataRef{Cluster: slotCluster, Index: slotIndex}
	node := &Node{
		Name:       name,
		Attributes: nodeAttrs,
		Parent:     parent,
		Mount:      parent.Mount,
		Ops:        &FileOperations,
	}
	if isDir {
		node.Kind = DirState{Meta: meta, Layout: []ClusterID{ClusterID(freeCluster)}}
	} else {
		node.Kind = FileState{Meta: meta, Layout: []ClusterID{ClusterID(freeCluster)}}
	}

	if err := writeBackMetadata(node); err != nil {
		return nil, err
	}

	zero := make([]byte, pagecache.BufferSize)
	if err := parent.Mount.Device.WriteByCluster(parent.Mount.ClusterLBA, freeCluster, zero); err != nil {
		return nil, err
	}

	if isDir {
		if err := initializeDotEntries(node, parent); err != nil {
			return nil, err
		}
	}

	parent.Children = append(parent.Children, node)
	return node, nil
}

// initializeDotEntries writes "." and ".." as the first two on-disk entries
// of a newly created directory's data cluster, and attaches the matching
// synthesized VFS children so the in-memory tree agrees with the disk.
func initializeDotEntries(dir *Node, parent *Node) errs.DriverError {
	mount := dir.Mount
	ds, _ := dir.Dir()
	selfCluster := ds.Layout[0]

	parentCluster := selfCluster // root-of-itself case: "." and ".." both point at self if parent has no layout
	if pl := parent.layout(); len(pl) > 0 {
		parentCluster = pl[0]
	}

	buf, err := rootClusterBuffer(mount, selfCluster)
	if err != nil {
		return err
	}

	dotEntry := dirent.RawEntry{Attributes: dirent.AttrDirectory}
	copy(dotEntry.Name[:], ".       ")
	dotEntry.SetCluster(uint32(selfCluster))

	dotDotEntry := dirent.RawEntry{Attributes: dirent.AttrDirectory}
	copy(dotDotEntry.Name[:], "..      ")
	dotDotEntry.SetCluster(uint32(parentCluster))

	copy(buf[0:dirent.Size], dirent.EncodeRaw(dotEntry))
	copy(buf[dirent.Size:2*dirent.Size], dirent.EncodeRaw(dotDotEntry))

	writeErr := mount.Device.WriteByCluster(mount.ClusterLBA, uint32(selfCluster), buf)
	mount.Cache.ReleaseBuffer(mount.RootGFD, uint32(selfCluster))
	if writeErr != nil {
		return writeErr
	}

	dir.Children = []*Node{
		{
			Name:       ".",
			Attributes: attrs.Read | attrs.Write | attrs.Directory,
			Parent:     dir,
			Mount:      mount,
			Ops:        &FileOperations,
			Kind:       DirState{Meta: MetadataRef{Cluster: selfCluster, Index: 0}, Layout: []ClusterID{selfCluster}},
		},
		{
			Name:       "..",
			Attributes: attrs.Read | attrs.Write | attrs.Directory,
			Parent:     dir,
			Mount:      mount,
			Ops:        &FileOperations,
			Kind:       DirState{Meta: MetadataRef{Cluster: selfCluster, Index: 1}, Layout: []ClusterID{parentCluster}},
		},
	}
	return nil
}
