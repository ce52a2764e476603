// Package pagecache implements the page cache: a fixed-size pool of 4 KiB
// buffers keyed by (file handle, logical page), with dirty tracking and
// anonymous reservation. There is no replacement policy: the pool is fixed
// size, and a reservation on a full pool fails rather than evicting.
package pagecache

import (
	"sync"
	"unsafe"

	"github.com/boljen/go-bitmap"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/gft"
)

// BufferSize is the size, in bytes, of a single cache cell (one data
// cluster).
const BufferSize = 4096

// Cache is a pool of fixed-size buffers shared by every open file in one
// mount's global file table. It is safe for concurrent use: all mutating
// operations hold a single pool-wide mutex, matching the lock the original
// driver's comments describe but never actually take.
type Cache struct {
	mu      sync.Mutex
	pool    []byte
	free    bitmap.Bitmap
	numBufs uint32
	gft     *gft.Table
}

// New creates a page cache of numBuffers buffers, backed by the given
// global file table for (handle, page) associations.
func New(numBuffers uint32, table *gft.Table) *Cache {
	return &Cache{
		pool:    make([]byte, uint64(numBuffers)*BufferSize),
		free:    bitmap.New(int(numBuffers)),
		numBufs: numBuffers,
		gft:     table,
	}
}

// NumBuffers returns the total size of the pool, in buffers.
func (c *Cache) NumBuffers() uint32 { return c.numBufs }

func (c *Cache) addrOf(slot uint32) []byte {
	start := uint64(slot) * BufferSize
	return c.pool[start : start+BufferSize]
}

// firstFreeSlot scans for the first unreserved slot. Caller must hold mu.
func (c *Cache) firstFreeSlot() (uint32, bool) {
	for i := uint32(0); i < c.numBufs; i++ {
		if !c.free.Get(int(i)) {
			return i, true
		}
	}
	return 0, false
}

// ReserveAnonymous reserves a buffer slot with no (handle, page) association
// and returns a slice onto it. Fails ErrDeplete if the pool is full.
func (c *Cache) ReserveAnonymous() ([]byte, errs.DriverError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserveAnonymousLocked()
}

func (c *Cache) reserveAnonymousLocked() ([]byte, errs.DriverError) {
	slot, ok := c.firstFreeSlot()
	if !ok {
		return nil, errs.New(errs.ErrDeplete)
	}
	c.free.Set(int(slot), true)
	return c.addrOf(slot), nil
}

// ReleaseAnonymous releases a buffer previously returned by ReserveAnonymous
// (or by ReserveBuffer, once its page-list entry has been removed). Silently
// does nothing if buf does not point into the pool.
func (c *Cache) ReleaseAnonymous(buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseAnonymousLocked(buf)
}

func (c *Cache) releaseAnonymousLocked(buf []byte) {
	slot, ok := c.slotOf(buf)
	if !ok {
		return
	}
	c.free.Set(int(slot), false)
}

// slotOf computes a buffer's slot index by pointer arithmetic:
// (address - pool_base) / BufferSize. Out-of-range addresses are rejected
// rather than trusted.
func (c *Cache) slotOf(buf []byte) (uint32, bool) {
	if len(buf) == 0 || len(c.pool) == 0 {
		return 0, false
	}

	base := uintptr(unsafe.Pointer(&c.pool[0]))
	target := uintptr(unsafe.Pointer(&buf[0]))
	if target < base {
		return 0, false
	}

	offset := target - base
	if offset >= uintptr(len(c.pool)) || offset%BufferSize != 0 {
		return 0, false
	}

	slot := uint32(offset / BufferSize)
	if slot >= c.numBufs {
		return 0, false
	}
	return slot, true
}

// GetBuffer returns the buffer currently holding (gfd, page), or nil if it
// is not cached. Unlike ReserveBuffer, a miss has no side effect.
func (c *Cache) GetBuffer(gfd gft.GFD, page uint32) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.gft.Get(gfd)
	if err != nil {
		return nil
	}
	idx := entry.FindPage(page)
	if idx < 0 {
		return nil
	}
	return c.addrOf(entry.Pages[idx].Slot)
}

// ReserveBuffer unconditionally reserves a new anonymous slot and associates
// it with (gfd, page), appending a page-list entry with Dirty=false. Callers
// must ensure the page isn't already present; this mirrors the source,
// which never upgrades this into a get-or-reserve.
func (c *Cache) ReserveBuffer(gfd gft.GFD, page uint32) ([]byte, errs.DriverError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.gft.Get(gfd)
	if err != nil {
		return nil, err
	}

	buf, err := c.reserveAnonymousLocked()
	if err != nil {
		return nil, err
	}

	slot, _ := c.slotOf(buf)
	entry.Pages = append(entry.Pages, gft.PageRecord{Page: page, Slot: slot, Dirty: false})
	return buf, nil
}

// ReleaseBuffer removes (gfd, page)'s page-list entry and releases the
// underlying slot. Fails ErrPageNotFound if the page isn't currently
// buffered; the pool is left unchanged in that case.
func (c *Cache) ReleaseBuffer(gfd gft.GFD, page uint32) errs.DriverError {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.gft.Get(gfd)
	if err != nil {
		return err
	}

	idx := entry.FindPage(page)
	if idx < 0 {
		return errs.New(errs.ErrPageNotFound)
	}

	slot := entry.Pages[idx].Slot
	entry.Pages = append(entry.Pages[:idx], entry.Pages[idx+1:]...)
	c.free.Set(int(slot), false)
	return nil
}

// MakeDirty sets or clears the dirty flag for (gfd, page). Fails
// ErrPageNotFound on a miss.
func (c *Cache) MakeDirty(gfd gft.GFD, page uint32, dirty bool) errs.DriverError {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.gft.Get(gfd)
	if err != nil {
		return err
	}
	idx := entry.FindPage(page)
	if idx < 0 {
		return errs.New(errs.ErrPageNotFound)
	}
	entry.Pages[idx].Dirty = dirty
	return nil
}

// IsPageDirty reports whether (gfd, page) is buffered and dirty. A miss
// returns false without error, matching the source.
func (c *Cache) IsPageDirty(gfd gft.GFD, page uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.gft.Get(gfd)
	if err != nil {
		return false
	}
	idx := entry.FindPage(page)
	if idx < 0 {
		return false
	}
	return entry.Pages[idx].Dirty
}
