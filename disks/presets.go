// Package disks holds the table of predefined floppy presets a genfatimage run
// can select with Options.Preset, loaded once at startup from an embedded CSV
// table keyed by slug.
package disks

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Preset is one row of the floppy preset table. Every preset additionally fixes
// FATWidth=12, SectorSize=512, and ReservedSectors=1, which are not part of the
// CSV since they never vary.
type Preset struct {
	Slug            string `csv:"slug"`
	VolumeSize      int64  `csv:"volume_size"`
	ClusterSize     int    `csv:"cluster_size"`
	RootDirSize     int    `csv:"root_dir_size"`
	SectorsPerTrack int    `csv:"sectors_per_track"`
	NumFATs         int    `csv:"num_fats"`
	MediaDesc       string `csv:"media_desc"`
}

//go:embed disk-presets.csv
var presetsRawCSV string

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)
	reader := strings.NewReader(presetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Preset) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate preset definition for slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("disks: failed to load embedded preset table: %s", err))
	}
}

// Lookup returns the preset registered under slug (one of "360", "720", "1200",
// "1440", "2880", naming the floppy capacity in KiB).
func Lookup(slug string) (Preset, bool) {
	p, ok := presets[slug]
	return p, ok
}
