// Package dirent implements the 32-byte FAT directory entry: the 8.3 short
// name codec, attribute mapping between the on-disk byte and the VFS's
// attrs.Attributes, and decoding/encoding of RawEntry against a cluster's
// backing bytes. Long file names, timestamps, and permission bits are out of
// scope; RawEntry keeps the timestamp fields only because they occupy fixed
// offsets in the 32-byte layout, not because this package interprets them.
package dirent

import (
	"encoding/binary"
	"strings"

	"github.com/kernelkit/fat32fs/attrs"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/noxer/bytewriter"
)

// Size is the on-disk size of one directory entry, in bytes.
const Size = 32

// EntriesPerCluster is the number of 32-byte entries that fit in one 4 KiB
// directory cluster.
const EntriesPerCluster = 4096 / Size

// FAT attribute byte bits.
const (
	AttrReadOnly  uint8 = 0x01
	AttrHidden    uint8 = 0x02
	AttrSystem    uint8 = 0x04
	AttrVolumeID  uint8 = 0x08
	AttrDirectory uint8 = 0x10
	AttrArchive   uint8 = 0x20
)

// Name-byte sentinels for the first byte of the name field.
const (
	freeMarker        byte = 0x00 // this entry and all following are free
	deletedMarker     byte = 0xE5 // this entry is deleted
	deletedRealFirst       = 0x05 // real first byte is 0xE5, stored here instead
)

// RawEntry is the on-disk representation of a short directory entry,
// field-for-field.
type RawEntry struct {
	Name             [8]byte
	Extension        [3]byte
	Attributes       uint8
	Reserved         uint8
	CreatedTimeTenth uint8
	CreatedTime      uint16
	CreatedDate      uint16
	LastAccessDate   uint16
	ClusterHigh      uint16
	LastModTime      uint16
	LastModDate      uint16
	ClusterLow       uint16
	FileSize         uint32
}

// State describes what decoding a 32-byte slot found.
type State int

const (
	// StateOccupied is a live entry with a valid name.
	StateOccupied State = iota
	// StateDeleted is a previously-live entry now marked free (0xE5).
	StateDeleted
	// StateEnd marks the first free slot and every slot after it; the
	// directory's entry list ends here (first byte 0x00).
	StateEnd
)

// DecodeRaw parses a 32-byte slice into a RawEntry. Panics if len(data) != Size,
// matching the page-cache layer's fixed-length contract.
func DecodeRaw(data []byte) RawEntry {
	if len(data) != Size {
		panic("dirent: DecodeRaw requires exactly 32 bytes")
	}

	var e RawEntry
	copy(e.Name[:], data[0:8])
	copy(e.Extension[:], data[8:11])
	e.Attributes = data[11]
	e.Reserved = data[12]
	e.CreatedTimeTenth = data[13]
	e.CreatedTime = binary.LittleEndian.Uint16(data[14:16])
	e.CreatedDate = binary.LittleEndian.Uint16(data[16:18])
	e.LastAccessDate = binary.LittleEndian.Uint16(data[18:20])
	e.ClusterHigh = binary.LittleEndian.Uint16(data[20:22])
	e.LastModTime = binary.LittleEndian.Uint16(data[22:24])
	e.LastModDate = binary.LittleEndian.Uint16(data[24:26])
	e.ClusterLow = binary.LittleEndian.Uint16(data[26:28])
	e.FileSize = binary.LittleEndian.Uint32(data[28:32])
	return e
}

// EncodeRaw serializes a RawEntry into exactly 32 bytes, writing through
// bytewriter so the caller can hand it a pre-sliced region of a cached
// cluster buffer without an intermediate allocation.
func EncodeRaw(e RawEntry) []byte {
	buf := make([]byte, Size)
	w := bytewriter.New(buf)

	w.Write(e.Name[:])
	w.Write(e.Extension[:])
	w.Write([]byte{e.Attributes, e.Reserved, e.CreatedTimeTenth})

	var scratch [2]byte
	binary.LittleEndian.PutUint16(scratch[:], e.CreatedTime)
	w.Write(scratch[:])
	binary.LittleEndian.PutUint16(scratch[:], e.CreatedDate)
	w.Write(scratch[:])
	binary.LittleEndian.PutUint16(scratch[:], e.LastAccessDate)
	w.Write(scratch[:])
	binary.LittleEndian.PutUint16(scratch[:], e.ClusterHigh)
	w.Write(scratch[:])
	binary.LittleEndian.PutUint16(scratch[:], e.LastModTime)
	w.Write(scratch[:])
	binary.LittleEndian.PutUint16(scratch[:], e.LastModDate)
	w.Write(scratch[:])
	binary.LittleEndian.PutUint16(scratch[:], e.ClusterLow)
	w.Write(scratch[:])

	var sizeScratch [4]byte
	binary.LittleEndian.PutUint32(sizeScratch[:], e.FileSize)
	w.Write(sizeScratch[:])

	return buf
}

// Cluster assembles the entry's 32-bit starting cluster from its high/low
// halves.
func (e RawEntry) Cluster() uint32 {
	return uint32(e.ClusterHigh)<<16 | uint32(e.ClusterLow)
}

// SetCluster splits a 32-bit cluster number into the entry's high/low
// fields.
func (e *RawEntry) SetCluster(cluster uint32) {
	e.ClusterHigh = uint16(cluster >> 16)
	e.ClusterLow = uint16(cluster)
}

// SlotState classifies a raw entry's first name byte without fully decoding
// its name, cheap enough to call while scanning a directory cluster for a
// free slot or the list's end.
func SlotState(e RawEntry) State {
	switch e.Name[0] {
	case freeMarker:
		return StateEnd
	case deletedMarker:
		return StateDeleted
	default:
		return StateOccupied
	}
}

// DecodeName reconstructs the compressed "NAME.EXT" form of an occupied
// entry, stripping padding spaces and aliasing the deleted-marker escape
// (0x05 in byte 0 really means a live name starting with 0xE5). It does not
// check SlotState first; callers on StateDeleted/StateEnd entries get
// whatever bytes happen to be there.
func DecodeName(e RawEntry) string {
	name := make([]byte, 0, 8)
	for i, b := range e.Name {
		if i == 0 && b == deletedRealFirst {
			name = append(name, 0xE5)
			continue
		}
		if b != ' ' {
			name = append(name, b)
		}
	}

	ext := make([]byte, 0, 3)
	for _, b := range e.Extension {
		if b != ' ' {
			ext = append(ext, b)
		}
	}

	if len(ext) == 0 {
		return string(name)
	}
	return string(name) + "." + string(ext)
}

// EncodeName renders name into an entry's Name/Extension fields, space
// padded to 8 and 3 bytes respectively. Fails ErrBadArguments if name (sans
// dot) doesn't fit within an 8.3 short name.
func EncodeName(name string) (base [8]byte, ext [3]byte, err errs.DriverError) {
	for i := range base {
		base[i] = ' '
	}
	for i := range ext {
		ext[i] = ' '
	}

	if len(name) > 12 {
		return base, ext, errs.New(errs.ErrBadArguments).WithMessage("name too long for 8.3")
	}

	dot := strings.IndexByte(name, '.')
	if dot > 8 {
		return base, ext, errs.New(errs.ErrBadArguments).WithMessage("stem too long for 8.3")
	}

	if dot < 0 {
		// No extension: the whole name (up to 8 bytes) is the base.
		stem := name
		if len(stem) > 8 {
			return base, ext, errs.New(errs.ErrBadArguments).WithMessage("stem too long for 8.3")
		}
		copy(base[:], stem)
		if b := base[0]; b == deletedMarker {
			base[0] = deletedRealFirst
		}
		return base, ext, nil
	}

	copy(base[:], name[:dot])
	tail := name[dot+1:]
	if len(tail) > 3 {
		return base, ext, errs.New(errs.ErrBadArguments).WithMessage("extension too long for 8.3")
	}
	copy(ext[:], tail)

	if base[0] == deletedMarker {
		base[0] = deletedRealFirst
	}
	return base, ext, nil
}

// badNameBytes lists the 8.3 name characters that are never legal, matching
// the original validator byte-for-byte (the '.' separator is handled
// separately and isn't in this set).
var badNameBytes = map[byte]bool{
	0x22: true, 0x2A: true, 0x2B: true, 0x2C: true, 0x2F: true,
	0x3A: true, 0x3B: true, 0x3C: true, 0x3D: true, 0x3E: true,
	0x3F: true, 0x5B: true, 0x5C: true, 0x5D: true, 0x7C: true,
}

// Validate83Name reports whether raw (the 8+3 name bytes, no dot, as stored
// on disk, not the human-readable decoded form) is a legal short name.
// Byte 0 may be the 0x05 deleted-marker escape even though it's below 0x20;
// every other control byte anywhere in the name is rejected.
func Validate83Name(raw []byte) bool {
	if len(raw) > 11 {
		return false
	}

	for i, b := range raw {
		if b < 0x20 {
			if i == 0 && b == deletedRealFirst {
				continue
			}
			return false
		}
		if badNameBytes[b] {
			return false
		}
	}
	return true
}

// ToAttributes maps a FAT attribute byte to the VFS's reduced attribute set.
func ToAttributes(fat uint8) attrs.Attributes {
	a := attrs.Read

	if fat&AttrReadOnly == 0 {
		a |= attrs.Write
	}
	if fat&AttrHidden != 0 {
		a |= attrs.Hidden
	}
	if fat&AttrDirectory != 0 {
		a |= attrs.Directory
	}
	return a
}

// FromAttributes maps VFS attributes back to a FAT attribute byte. The
// archive bit is left clear: it exists for backup tools to track changes,
// not as a node classification, so nothing here ever sets it.
func FromAttributes(a attrs.Attributes) uint8 {
	var fat uint8

	if a.IsDirectory() {
		fat |= AttrDirectory
	}
	if a.IsReadOnly() {
		fat |= AttrReadOnly
	}
	if a.Has(attrs.Hidden) {
		fat |= AttrHidden
	}
	return fat
}
