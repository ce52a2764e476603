package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kernelkit/fat32fs/blockio"
	"github.com/kernelkit/fat32fs/fat"
	"github.com/kernelkit/fat32fs/geometry"
)

// formatPartitionOffsetSectors and formatRootCluster fix the two layout
// choices a fresh image makes on its own: the partition starts one sector
// into the image (sector 0 is the MBR), and the root directory is always
// the first cluster allocated.
const (
	formatPartitionOffsetSectors uint32 = 1
	formatRootCluster            uint32 = 2

	mbrPartitionEntryOffset = 0x1BE
)

func format(c *cli.Context) error {
	slug := c.Args().First()
	if slug == "" {
		return fmt.Errorf("format: missing geometry preset slug (known presets: %s)", strings.Join(geometry.Slugs(), ", "))
	}

	geo, err := geometry.Lookup(slug)
	if err != nil {
		return err
	}
	if geo.ClusterSizeBytes() != blockio.BufferSize {
		return fmt.Errorf("format: preset %q uses %d-byte clusters, this driver's page cache only handles %d-byte clusters",
			geo.Slug, geo.ClusterSizeBytes(), blockio.BufferSize)
	}

	image := buildFormattedImage(geo)

	path := c.String("image")
	if err := os.WriteFile(path, image, 0644); err != nil {
		return fmt.Errorf("format: writing image: %w", err)
	}
	fmt.Printf("formatted %s (%d bytes, %s)\n", path, len(image), geo.Slug)
	return nil
}

// buildFormattedImage lays out a fresh FAT32 volume per geo: the MBR, the
// BPB, a FAT with its two reserved entries and the root directory's chain
// marked EOF, and a zeroed root directory cluster. The layout matches what
// vfs.Mount expects to read back.
func buildFormattedImage(geo geometry.VolumeGeometry) []byte {
	fatLBA := formatPartitionOffsetSectors + geo.ReservedSectors
	image := make([]byte, int64(geo.TotalSectors)*blockio.SectorSize)

	binary.LittleEndian.PutUint32(image[mbrPartitionEntryOffset+8:], formatPartitionOffsetSectors)

	bpb := image[int64(formatPartitionOffsetSectors)*blockio.SectorSize:]
	binary.LittleEndian.PutUint16(bpb[11:], uint16(geo.BytesPerSector))
	bpb[13] = byte(geo.SectorsPerCluster)
	binary.LittleEndian.PutUint16(bpb[14:], uint16(geo.ReservedSectors))
	bpb[16] = byte(geo.NumFATs)
	binary.LittleEndian.PutUint32(bpb[32:], geo.TotalSectors)
	binary.LittleEndian.PutUint32(bpb[36:], geo.SectorsPerFAT)
	binary.LittleEndian.PutUint32(bpb[44:], formatRootCluster)

	fatBlock := image[int64(fatLBA)*blockio.SectorSize:]
	binary.LittleEndian.PutUint32(fatBlock[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatBlock[4:], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fatBlock[formatRootCluster*4:], fat.EOF)

	return image
}
