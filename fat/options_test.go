package fat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyPresetFillsFields(t *testing.T) {
	o := &Options{}
	err := o.ApplyPreset("1440")
	require.Nil(t, err)
	require.EqualValues(t, 1474560, o.VolumeSize)
	require.Equal(t, 512, o.ClusterSize)
	require.Equal(t, 224, o.RootDirSize)
	require.Equal(t, 18, o.SectorsPerTrack)
	require.Equal(t, "F0", o.MediaDesc)
	require.Equal(t, 12, o.FATWidthForced)
}

func TestApplyPresetRejectsConflict(t *testing.T) {
	o := &Options{FATWidthForced: 32}
	err := o.ApplyPreset("1440")
	require.NotNil(t, err)
}

func TestApplyPresetUnknownSlug(t *testing.T) {
	o := &Options{}
	err := o.ApplyPreset("999")
	require.NotNil(t, err)
}

func TestValidateSectorSizeNotPowerOfTwo(t *testing.T) {
	o := DefaultOptions()
	o.SectorSize = 500
	o.NumFiles = 1
	err := o.Validate()
	require.NotNil(t, err)
}

func TestValidateNoFilesNoSize(t *testing.T) {
	o := DefaultOptions()
	err := o.Validate()
	require.NotNil(t, err)
}

func TestValidateAggregatesMultipleErrors(t *testing.T) {
	o := DefaultOptions()
	o.SectorSize = 500
	o.Serial = "bogus"
	o.MediaDesc = "zz"
	err := o.Validate()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "sector_size")
	require.Contains(t, err.Error(), "serial")
	require.Contains(t, err.Error(), "media_desc")
}

func TestValidateAcceptsGoodOptions(t *testing.T) {
	o := DefaultOptions()
	o.NumFiles = 1
	err := o.Validate()
	require.Nil(t, err)
}

func TestParseSerialExplicit(t *testing.T) {
	o := &Options{Serial: "ABCD-1234"}
	require.Equal(t, uint32(0xABCD1234), o.ParseSerial())
}

func TestMediaDescByteDefaults(t *testing.T) {
	o := &Options{}
	require.Equal(t, byte(0xF0), o.MediaDescByte())
	o.Partitioned = true
	require.Equal(t, byte(0xF8), o.MediaDescByte())
}

func TestMediaDescByteFollowsPartitionedThroughDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	o.Partitioned = true
	require.Equal(t, byte(0xF8), o.MediaDescByte())
}
