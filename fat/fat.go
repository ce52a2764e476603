// Package fat implements FAT32 table access: reading, writing, scanning,
// and allocating the 32-bit-entry, 128-entries-per-4KiB-block FAT itself.
// It borrows a single scratch buffer per call from the page cache rather
// than keeping a dedicated one permanently reserved, so FAT access composes
// cleanly with everything else contending for the pool.
package fat

import (
	"encoding/binary"
	"sync"

	"github.com/kernelkit/fat32fs/blockio"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/gft"
	"github.com/kernelkit/fat32fs/pagecache"
)

// EntriesPerBlock is the number of 32-bit FAT entries that fit in one 4 KiB
// FAT block.
const EntriesPerBlock = 128

// EOF is the lowest value that terminates a cluster chain. Any stored value
// at or above this is "end of file"; 0 is free; anything else is a forward
// link.
const EOF uint32 = 0x0FFFFFF8

// valueMask keeps only the low 28 bits of a FAT entry; the top 4 bits are
// reserved.
const valueMask uint32 = 0x0FFFFFFF

// Cursor is the FAT's single point of access: a scoped acquisition guard
// around the page cache's scratch buffer. Every public method here takes
// mu, reserves the buffer, does its one read-modify-write, and releases
// both before returning on every exit path, so the scratch buffer is
// exclusive for the duration of that read-modify-write: two concurrent FAT
// operations can never both hold it.
type Cursor struct {
	mu            sync.Mutex
	cache         *pagecache.Cache
	scratchGFD    gft.GFD
	device        *blockio.Device
	fatLBA        uint32
	totalClusters uint32
}

// NewCursor creates a FAT cursor. scratchGFD is normally the mount's root
// directory GFD: the scratch buffer is borrowed as gft.FATScratchPage under
// that handle so it shares the same page-cache accounting as everything
// else, without ever being mistaken for a real cached page of the root
// directory.
func NewCursor(cache *pagecache.Cache, scratchGFD gft.GFD, device *blockio.Device, fatLBA, totalClusters uint32) *Cursor {
	return &Cursor{
		cache:         cache,
		scratchGFD:    scratchGFD,
		device:        device,
		fatLBA:        fatLBA,
		totalClusters: totalClusters,
	}
}

// borrow reserves the scratch buffer for the duration of one FAT
// read-modify-write and returns a release function that must run on every
// exit path.
func (c *Cursor) borrow() ([]byte, func(), errs.DriverError) {
	buf, err := c.cache.ReserveBuffer(c.scratchGFD, gft.FATScratchPage)
	if err != nil {
		return nil, nil, err
	}
	return buf, func() { c.cache.ReleaseBuffer(c.scratchGFD, gft.FATScratchPage) }, nil
}

func readEntry(block []byte, slot uint32) uint32 {
	return binary.LittleEndian.Uint32(block[slot*4:slot*4+4]) & valueMask
}

func writeEntry(block []byte, slot uint32, value uint32) {
	binary.LittleEndian.PutUint32(block[slot*4:slot*4+4], value&valueMask)
}

// blockLBA returns the LBA of the 4 KiB FAT block holding FAT index i.
// Each block is 8 sectors, so the block index must be scaled to sector
// units before adding it to the FAT's base LBA.
func (c *Cursor) blockLBA(fatBlockIndex uint32) uint32 {
	return c.fatLBA + fatBlockIndex*blockio.SectorsPerBuffer
}

// NextCluster returns the cluster that follows `current` in its chain, by
// reading the FAT entry at index `current`.
func (c *Cursor) NextCluster(current uint32) (uint32, errs.DriverError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, release, err := c.borrow()
	if err != nil {
		return 0, err
	}
	defer release()

	block := current / EntriesPerBlock
	slot := current % EntriesPerBlock

	if err := c.device.Read4K(c.blockLBA(block), buf); err != nil {
		return 0, err
	}
	return readEntry(buf, slot), nil
}

// MarkCluster writes value into the FAT entry at fatIndex and returns the
// entry's previous value.
func (c *Cursor) MarkCluster(fatIndex uint32, value uint32) (uint32, errs.DriverError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, release, err := c.borrow()
	if err != nil {
		return 0, err
	}
	defer release()

	block := fatIndex / EntriesPerBlock
	slot := fatIndex % EntriesPerBlock

	if err := c.device.Read4K(c.blockLBA(block), buf); err != nil {
		return 0, err
	}

	previous := readEntry(buf, slot)
	writeEntry(buf, slot, value)

	if err := c.device.Write4K(c.blockLBA(block), buf); err != nil {
		return 0, err
	}
	return previous, nil
}

// ReserveFirstCluster scans the FAT in block order for the first free
// (zero-valued) entry, marks it with nextValue, and returns its cluster
// index. The scan is bounded by the volume's total cluster count, so a full
// volume fails ErrNoSpace instead of looping forever.
func (c *Cursor) ReserveFirstCluster(nextValue uint32) (uint32, errs.DriverError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalBlocks := (c.totalClusters + EntriesPerBlock - 1) / EntriesPerBlock

	buf, release, err := c.borrow()
	if err != nil {
		return 0, err
	}
	defer release()

	for blockIndex := uint32(0); blockIndex < totalBlocks; blockIndex++ {
		if err := c.device.Read4K(c.blockLBA(blockIndex), buf); err != nil {
			return 0, err
		}

		for slot := uint32(0); slot < EntriesPerBlock; slot++ {
			clusterID := blockIndex*EntriesPerBlock + slot
			if clusterID >= c.totalClusters {
				break
			}
			if readEntry(buf, slot) != 0 {
				continue
			}

			writeEntry(buf, slot, nextValue)
			if err := c.device.Write4K(c.blockLBA(blockIndex), buf); err != nil {
				return 0, err
			}
			return clusterID, nil
		}
	}

	return 0, errs.New(errs.ErrNoSpace)
}
