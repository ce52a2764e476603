// Package vfs glues the page cache, FAT table, and directory codec together
// into a tree of file/directory nodes with read/write/open/sync/ioctl
// operation tables, the way a kernel's VFS layer would see this driver.
package vfs

import (
	"github.com/kernelkit/fat32fs/attrs"
	"github.com/kernelkit/fat32fs/blockio"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/fat"
	"github.com/kernelkit/fat32fs/gft"
	"github.com/kernelkit/fat32fs/pagecache"
)

// ClusterID is a 28-bit FAT32 cluster number (the top 4 bits of a stored
// entry are always reserved and masked off before a value becomes a
// ClusterID).
type ClusterID uint32

// MetadataRef names the directory slot a node's 32-byte entry lives in:
// which cluster of the parent directory, and which of its 128 entries.
type MetadataRef struct {
	Cluster ClusterID
	Index   int
}

// NodeKind is the tagged union replacing a single untyped "driver private
// data" pointer: every node is exactly one of FileState, DirState, or
// MountState, and the concrete type is what used to be discriminated by a
// void* cast.
type NodeKind interface {
	isNodeKind()
}

// FileState is a regular file's private state: where its directory entry
// lives, and the ordered list of clusters holding its bytes.
type FileState struct {
	Meta   MetadataRef
	Layout []ClusterID
}

func (FileState) isNodeKind() {}

// DirState is a directory's private state. Its own Layout is the chain of
// clusters holding its *own* directory entries (as opposed to FileState's
// Layout, which holds file data).
type DirState struct {
	Meta   MetadataRef
	Layout []ClusterID
}

func (DirState) isNodeKind() {}

// MountState is the root node's private state: everything needed to
// translate a logical page or cluster into a physical LBA on this volume.
type MountState struct {
	PartitionOffset     uint32
	FATLBA              uint32
	ClusterLBA          uint32
	RootDirFirstCluster ClusterID
	TotalClusters       uint32

	Device *blockio.Device
	Cache  *pagecache.Cache
	GFT    *gft.Table
	FAT    *fat.Cursor

	RootGFD gft.GFD

	// Layout is the root directory's own cluster chain, materialized the
	// same way a file or subdirectory's Layout is: starts as a single
	// known cluster, extended by materializeLayout and growDirectory.
	Layout []ClusterID
}

func (*MountState) isNodeKind() {}

// IoctlCommand is a closed enum of ioctl operations, replacing the
// original's variadic command-code-plus-arguments calling convention.
type IoctlCommand int

// IoctlInvalidate is the only command this driver honors: it's a
// side-effect-only flush hook that re-emits the mount's root entry.
const IoctlInvalidate IoctlCommand = 0

// IoctlPayload carries a command's arguments. IoctlInvalidate takes none.
type IoctlPayload any

// Operations is a node's function table, mirroring the original's
// fs_operations struct of slots. File nodes and the mount node get distinct
// tables (FileOperations, MountOperations) the same way the source declares
// fat_fs_operations and fat_mount_operations separately; a nil slot means
// the operation isn't supported on that kind of node.
type Operations struct {
	Read  func(n *Node, start uint32, count uint32, dst []byte) (int, errs.DriverError)
	Write func(n *Node, start uint32, src []byte) (int, errs.DriverError)
	Open  func(n *Node) errs.DriverError
	Sync  func(n *Node, pageStart, pageEnd uint32) errs.DriverError
	Ioctl func(n *Node, cmd IoctlCommand, payload IoctlPayload) errs.DriverError
}

// Node is one entry in the VFS tree: a file, a directory, or (at the root)
// the mount point itself.
type Node struct {
	Name       string
	Attributes attrs.Attributes
	Length     uint32

	// Parent is a weak back-reference: Node never owns its parent, only the
	// other direction (Children). Cyclic ownership never forms.
	Parent   *Node
	Children []*Node

	Ops  *Operations
	Kind NodeKind

	// Mount points at the owning volume's MountState, whatever kind this
	// particular node is. The root node's own Kind is *MountState, and its
	// Mount field points at that same struct.
	Mount *MountState

	// GFD is this node's open-file handle once Open has been called, or the
	// zero value before that (GFD 0 is reserved for the mount's own root
	// registration, so a real file's zero value is distinguished by Opened).
	GFD    gft.GFD
	Opened bool
}

// File returns n's FileState and true, or zero value and false if n is not
// a regular file.
func (n *Node) File() (FileState, bool) {
	fs, ok := n.Kind.(FileState)
	return fs, ok
}

// Dir returns n's DirState and true, or zero value and false if n is not a
// directory.
func (n *Node) Dir() (DirState, bool) {
	ds, ok := n.Kind.(DirState)
	return ds, ok
}

// layout returns the cluster list backing n's data, whichever kind n is.
func (n *Node) layout() []ClusterID {
	switch k := n.Kind.(type) {
	case FileState:
		return k.Layout
	case DirState:
		return k.Layout
	case *MountState:
		return k.Layout
	default:
		return nil
	}
}

// setLayout replaces n's cluster list in place, preserving its Meta.
func (n *Node) setLayout(layout []ClusterID) {
	switch k := n.Kind.(type) {
	case FileState:
		k.Layout = layout
		n.Kind = k
	case DirState:
		k.Layout = layout
		n.Kind = k
	case *MountState:
		k.Layout = layout
	}
}

// meta returns n's directory-slot reference, whichever kind n is.
func (n *Node) meta() MetadataRef {
	switch k := n.Kind.(type) {
	case FileState:
		return k.Meta
	case DirState:
		return k.Meta
	default:
		return MetadataRef{}
	}
}

// setMeta replaces n's directory-slot reference in place, preserving its
// Layout. A no-op on a *MountState node, which has no slot of its own.
func (n *Node) setMeta(meta MetadataRef) {
	switch k := n.Kind.(type) {
	case FileState:
		k.Meta = meta
		n.Kind = k
	case DirState:
		k.Meta = meta
		n.Kind = k
	}
}

// IsDotOrDotDot reports whether n is a synthesized "." or ".." directory
// entry, which the walker never recurses into.
func (n *Node) IsDotOrDotDot() bool {
	return n.Name == "." || n.Name == ".."
}
