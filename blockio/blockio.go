// Package blockio is the lowest layer of the driver: it moves fixed-size
// 4 KiB sector groups between a backing disk image and caller-supplied
// buffers. It knows nothing about FAT, directories, or the page cache above
// it, only linear block addresses.
package blockio

import (
	"io"

	"github.com/kernelkit/fat32fs/errs"
)

// SectorSize is the size, in bytes, of one physical sector on the volume.
const SectorSize = 512

// SectorsPerBuffer is the number of sectors that make up one page-cache
// buffer / one data cluster.
const SectorsPerBuffer = 8

// BufferSize is the size, in bytes, of one page-cache buffer / data cluster.
const BufferSize = SectorSize * SectorsPerBuffer

// Device is the block I/O shim: it maps (mount, LBA) onto an 8-sector
// transfer against the backing store. The backing store is any
// io.ReaderAt + io.WriterAt: a real file, or bytesextra.NewReadWriteSeeker
// wrapping an in-memory image in tests and the CLI.
type Device struct {
	backing io.ReaderAt
	writer  io.WriterAt
}

// ReadWriterAt is the minimal capability a backing store must provide.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// NewDevice wraps a backing store as a block device.
func NewDevice(backing ReadWriterAt) *Device {
	return &Device{backing: backing, writer: backing}
}

// Read4K issues one 8-sector (4096 B) transfer starting at linear block
// address lba into dst. dst must be exactly BufferSize bytes.
func (d *Device) Read4K(lba uint32, dst []byte) errs.DriverError {
	if d == nil || d.backing == nil {
		return errs.New(errs.ErrBadArguments)
	}
	if len(dst) != BufferSize {
		return errs.ErrBadArguments.WithMessage("destination buffer must be exactly one cluster")
	}

	offset := int64(lba) * SectorSize
	n, err := d.backing.ReadAt(dst, offset)
	if err != nil && !(err == io.EOF && n == BufferSize) {
		return errs.ErrGeneral.WrapError(err)
	}
	return nil
}

// Write4K issues one 8-sector (4096 B) transfer of src to linear block
// address lba. src must be exactly BufferSize bytes.
func (d *Device) Write4K(lba uint32, src []byte) errs.DriverError {
	if d == nil || d.writer == nil {
		return errs.New(errs.ErrBadArguments)
	}
	if len(src) != BufferSize {
		return errs.ErrBadArguments.WithMessage("source buffer must be exactly one cluster")
	}

	offset := int64(lba) * SectorSize
	_, err := d.writer.WriteAt(src, offset)
	if err != nil {
		return errs.ErrGeneral.WrapError(err)
	}
	return nil
}

// ClusterToLBA applies the classic FAT32 bias of 2: cluster IDs start at 2,
// and clusterLBA is the linear block address of cluster 2.
func ClusterToLBA(clusterLBA uint32, cluster uint32) uint32 {
	return clusterLBA + (cluster-2)*SectorsPerBuffer
}

// ReadByCluster reads the data cluster identified by `cluster`, biased from
// the volume's ClusterLBA, into dst.
func (d *Device) ReadByCluster(clusterLBA, cluster uint32, dst []byte) errs.DriverError {
	return d.Read4K(ClusterToLBA(clusterLBA, cluster), dst)
}

// WriteByCluster writes src to the data cluster identified by `cluster`,
// biased from the volume's ClusterLBA.
func (d *Device) WriteByCluster(clusterLBA, cluster uint32, src []byte) errs.DriverError {
	return d.Write4K(ClusterToLBA(clusterLBA, cluster), src)
}
