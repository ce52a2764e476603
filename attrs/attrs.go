// Package attrs defines the small set of node attribute bits shared between
// the directory-entry codec and the VFS layer, so neither package needs to
// import the other just to talk about "read-only" or "directory".
package attrs

// Attributes is a bitset of VFS-level node attributes. It deliberately
// carries far fewer bits than FAT's on-disk attribute byte: timestamps,
// permissions and the archive bit have no VFS-level meaning here.
type Attributes uint8

const (
	Read      Attributes = 1 << iota // always set; FAT files are always readable
	Write                            // clear when the FAT entry is READ_ONLY
	Directory                        // set when the FAT entry is DIRECTORY
	Hidden                           // mirrors the FAT HIDDEN bit
)

func (a Attributes) Has(bit Attributes) bool { return a&bit != 0 }

func (a Attributes) IsDirectory() bool { return a.Has(Directory) }
func (a Attributes) IsReadOnly() bool  { return !a.Has(Write) }
