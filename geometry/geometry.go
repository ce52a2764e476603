// Package geometry holds a small table of known FAT32 volume geometries,
// the BPB field values a formatter or test fixture needs to lay out a
// volume of a given nominal size without recomputing them by hand.
package geometry

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// VolumeGeometry is one row of the preset table: the BPB fields Mount
// reads, already worked out for a particular nominal volume size.
type VolumeGeometry struct {
	Name              string `csv:"name"`
	Slug              string `csv:"slug"`
	BytesPerSector    uint32 `csv:"bytes_per_sector"`
	SectorsPerCluster uint32 `csv:"sectors_per_cluster"`
	ReservedSectors   uint32 `csv:"reserved_sectors"`
	NumFATs           uint32 `csv:"num_fats"`
	SectorsPerFAT     uint32 `csv:"sectors_per_fat"`
	TotalSectors      uint32 `csv:"total_sectors"`
	Notes             string `csv:"notes"`
}

// ClusterSizeBytes is the size, in bytes, of one cluster under this
// geometry.
func (g *VolumeGeometry) ClusterSizeBytes() uint32 {
	return g.BytesPerSector * g.SectorsPerCluster
}

// TotalSizeBytes is the nominal size of a volume formatted with this
// geometry.
func (g *VolumeGeometry) TotalSizeBytes() int64 {
	return int64(g.BytesPerSector) * int64(g.TotalSectors)
}

//go:embed volumes.csv
var presetsRawCSV string

var presets map[string]VolumeGeometry

// presetOrder holds every slug in the order its row appears in volumes.csv.
var presetOrder []string

// Lookup returns the preset geometry registered under slug.
func Lookup(slug string) (VolumeGeometry, error) {
	geometry, ok := presets[slug]
	if !ok {
		return VolumeGeometry{}, fmt.Errorf("geometry: no predefined volume geometry with slug %q", slug)
	}
	return geometry, nil
}

// Slugs lists every registered preset slug, in table order.
func Slugs() []string {
	return append([]string(nil), presetOrder...)
}

func init() {
	presets = make(map[string]VolumeGeometry)

	reader := strings.NewReader(presetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row VolumeGeometry) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("geometry: duplicate definition for volume %q", row.Slug)
		}
		presets[row.Slug] = row
		presetOrder = append(presetOrder, row.Slug)
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}
