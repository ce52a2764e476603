// Package gft implements the global file table: the system-wide index of
// open files that the page cache associates buffers with. Each entry owns
// an ordered list of the pages currently buffered for that file.
package gft

import (
	"github.com/kernelkit/fat32fs/errs"
)

// GFD is a global file descriptor: an index into the table.
type GFD uint32

// FATScratchPage is a reserved logical page index, borrowed from the
// mount's own root-directory GFD whenever the FAT cursor needs a buffer to
// read-modify-write a FAT block. It can never collide with a real page
// index because real pages index into actual on-disk clusters and this
// sentinel sits outside that address space. Mirrors GFD_FAT_SPECIAL, which
// the original source passes as the *page* argument of
// page_cache_reserve_buffer, not as a second file descriptor.
const FATScratchPage uint32 = 0xFFFFFFFF

// PageRecord associates one logical page of an open file with the
// page-cache buffer slot currently holding it.
type PageRecord struct {
	Page  uint32
	Slot  uint32
	Dirty bool
}

// Entry is one row of the global file table.
type Entry struct {
	// Node is an opaque handle to whatever the caller considers "the file".
	// The vfs package stores a *vfs.Node here. The table itself doesn't
	// need to know the concrete type.
	Node  any
	Pages []PageRecord
	open  bool
}

// Table is the global file table. It is not safe for concurrent use without
// external synchronization, matching the single-threaded-cooperative model
// the rest of the driver assumes.
type Table struct {
	entries []Entry
	free    []GFD
}

// New creates an empty global file table.
func New() *Table {
	return &Table{}
}

// Insert allocates a GFD for node and returns it. Freed slots are reused
// before the table grows.
func (t *Table) Insert(node any) GFD {
	if len(t.free) > 0 {
		gfd := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.entries[gfd] = Entry{Node: node, open: true}
		return gfd
	}

	t.entries = append(t.entries, Entry{Node: node, open: true})
	return GFD(len(t.entries) - 1)
}

// Get returns the entry for gfd. The returned pointer is only valid until
// the next call to Insert or Close.
func (t *Table) Get(gfd GFD) (*Entry, errs.DriverError) {
	if int(gfd) < 0 || int(gfd) >= len(t.entries) || !t.entries[gfd].open {
		return nil, errs.New(errs.ErrInvalid)
	}
	return &t.entries[gfd], nil
}

// Close marks gfd's slot free for reuse. It does not release any page-cache
// buffers; callers must do that first (see vfs.DeleteNode's releaseAllPages /
// pagecache.ReleaseBuffer).
func (t *Table) Close(gfd GFD) errs.DriverError {
	if int(gfd) < 0 || int(gfd) >= len(t.entries) || !t.entries[gfd].open {
		return errs.New(errs.ErrInvalid)
	}
	t.entries[gfd] = Entry{}
	t.free = append(t.free, gfd)
	return nil
}

// FindPage scans gfd's page list for page, returning its index in Pages or
// -1 if it's not currently buffered.
func (e *Entry) FindPage(page uint32) int {
	for i := range e.Pages {
		if e.Pages[i].Page == page {
			return i
		}
	}
	return -1
}
