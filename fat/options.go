package fat

import (
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/chasonr/genfatimage/disks"
	"github.com/chasonr/genfatimage/errors"
)

// Options is the contract between the external CLI collaborator and the core.
// Zero values correspond to "not set"; DefaultOptions fills in the documented
// defaults.
type Options struct {
	Output string
	Verbose bool

	Preset string

	VolumeSize int64
	FreeSpace  int64

	ClusterSize    int
	RootDirSize    int
	FATWidthForced int

	Partitioned bool
	Label       string
	BootRecord  string
	OEMName     string
	Serial      string

	SectorsPerTrack int
	NumHeads        int
	MediaDesc       string
	SectorSize      int
	ReservedSectors int
	NumFATs         int

	// NumFiles is the count of files/directories the caller is about to add;
	// used only by Validate's "no files and no size" rule.
	NumFiles int
}

var serialPattern = regexp.MustCompile(`^[0-9A-Fa-f]{1,4}-[0-9A-Fa-f]{1,4}$`)
var mediaDescPattern = regexp.MustCompile(`^[0-9A-Fa-f]{1,2}$`)

// DefaultOptions returns an Options populated with every documented default.
func DefaultOptions() *Options {
	return &Options{
		Output:          "dos-volume.img",
		Label:           "NO NAME",
		OEMName:         "MSWIN4.1",
		SectorsPerTrack: 63,
		NumHeads:        255,
		SectorSize:      512,
		NumFATs:         2,
	}
}

// ApplyPreset overlays a floppy preset's fixed fields onto o. It fails if o
// already carries, for any field the preset fixes, a non-zero value that
// differs from the preset's value; a value equal to the preset's is accepted,
// and SectorsPerTrack=63 (the default) counts as unset.
func (o *Options) ApplyPreset(slug string) errors.ImageError {
	preset, ok := disks.Lookup(slug)
	if !ok {
		return errors.BadOption("unknown preset %q", slug)
	}

	if o.FATWidthForced != 0 && o.FATWidthForced != 12 {
		return errors.BadOption("preset %q fixes fat_width=12, which conflicts with fat_width_forced=%d", slug, o.FATWidthForced)
	}
	if o.SectorSize != 0 && o.SectorSize != 512 {
		return errors.BadOption("preset %q fixes sector_size=512, which conflicts with the requested sector_size", slug)
	}
	if o.ReservedSectors != 0 && o.ReservedSectors != 1 {
		return errors.BadOption("preset %q fixes reserved_sectors=1, which conflicts with the requested reserved_sectors", slug)
	}
	if o.NumFATs != 0 && o.NumFATs != 2 {
		return errors.BadOption("preset %q fixes num_fats=2, which conflicts with the requested num_fats", slug)
	}
	if o.VolumeSize != 0 && o.VolumeSize != preset.VolumeSize {
		return errors.BadOption("preset %q fixes volume_size=%d, which conflicts with the requested volume_size", slug, preset.VolumeSize)
	}
	if o.ClusterSize != 0 && o.ClusterSize != preset.ClusterSize {
		return errors.BadOption("preset %q fixes cluster_size=%d, which conflicts with the requested cluster_size", slug, preset.ClusterSize)
	}
	if o.RootDirSize != 0 && o.RootDirSize != preset.RootDirSize {
		return errors.BadOption("preset %q fixes root_dir_size=%d, which conflicts with the requested root_dir_size", slug, preset.RootDirSize)
	}
	if o.SectorsPerTrack != 0 && o.SectorsPerTrack != 63 && o.SectorsPerTrack != preset.SectorsPerTrack {
		return errors.BadOption("preset %q fixes sectors_per_track=%d, which conflicts with the requested sectors_per_track", slug, preset.SectorsPerTrack)
	}
	if o.MediaDesc != "" && o.MediaDesc != preset.MediaDesc {
		return errors.BadOption("preset %q fixes media_desc=%q, which conflicts with the requested media_desc", slug, preset.MediaDesc)
	}

	o.Preset = slug
	o.FATWidthForced = 12
	o.SectorSize = 512
	o.ReservedSectors = 1
	o.NumFATs = 2
	o.VolumeSize = preset.VolumeSize
	o.ClusterSize = preset.ClusterSize
	o.RootDirSize = preset.RootDirSize
	o.SectorsPerTrack = preset.SectorsPerTrack
	o.MediaDesc = preset.MediaDesc
	return nil
}

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate runs every option validation rule, aggregating all violations with
// go-multierror so a single run reports every problem at once rather than
// stopping at the first one.
func (o *Options) Validate() errors.ImageError {
	var result *multierror.Error

	if o.FATWidthForced != 0 && o.FATWidthForced != 12 && o.FATWidthForced != 16 && o.FATWidthForced != 32 {
		result = multierror.Append(result, fmt.Errorf("fat_width_forced must be one of {12, 16, 32}, got %d", o.FATWidthForced))
	}

	if !isPowerOfTwo(o.SectorSize) || o.SectorSize < 128 || o.SectorSize > 32768 {
		result = multierror.Append(result, fmt.Errorf("sector_size must be a power of two in [128, 32768], got %d", o.SectorSize))
	}
	if o.FATWidthForced == 32 && o.SectorSize < 512 {
		result = multierror.Append(result, fmt.Errorf("FAT32 requires sector_size >= 512, got %d", o.SectorSize))
	}

	if o.ClusterSize != 0 {
		if o.SectorSize <= 0 || o.ClusterSize%o.SectorSize != 0 {
			result = multierror.Append(result, fmt.Errorf("cluster_size must be a multiple of sector_size"))
		} else {
			ratio := o.ClusterSize / o.SectorSize
			if !isPowerOfTwo(ratio) || ratio > 128 {
				result = multierror.Append(result, fmt.Errorf("cluster_size must be a power-of-two multiple of sector_size in [1x, 128x], got %dx", ratio))
			}
		}
	}

	if o.Serial != "" && !serialPattern.MatchString(o.Serial) {
		result = multierror.Append(result, fmt.Errorf("serial %q does not match HHHH-HHHH", o.Serial))
	}

	if o.MediaDesc != "" && !mediaDescPattern.MatchString(o.MediaDesc) {
		result = multierror.Append(result, fmt.Errorf("media_desc %q must be 1-2 hex digits", o.MediaDesc))
	}

	if o.NumFiles == 0 && o.VolumeSize == 0 && o.FreeSpace == 0 {
		result = multierror.Append(result, fmt.Errorf("no files provided and neither volume_size nor free_space set"))
	}

	if len(o.Label) > 11 {
		result = multierror.Append(result, fmt.Errorf("label %q exceeds 11 ASCII characters", o.Label))
	}

	if result == nil || result.Len() == 0 {
		return nil
	}
	return errors.BadOption("%s", result.Error())
}

// ParseSerial resolves the configured serial number into its 32-bit on-disk
// value: a user-supplied HHHH-HHHH pair, or the current Unix time truncated to
// 32 bits.
func (o *Options) ParseSerial() uint32 {
	if o.Serial == "" {
		return uint32(time.Now().Unix())
	}

	var left, right uint32
	fmt.Sscanf(o.Serial, "%x-%x", &left, &right)
	return (left << 16) | right
}

// MediaDescByte parses the configured media descriptor hex string, falling
// back to the partitioned/non-partitioned default.
func (o *Options) MediaDescByte() byte {
	s := o.MediaDesc
	if s == "" {
		if o.Partitioned {
			s = "F8"
		} else {
			s = "F0"
		}
	}
	var v uint32
	fmt.Sscanf(s, "%x", &v)
	return byte(v)
}
