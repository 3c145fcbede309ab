package fat

import (
	"github.com/chasonr/genfatimage/errors"
)

// FAT cluster-count thresholds: the largest data-cluster count for which each
// FAT width is chosen (cluster numbering starts at 2, after the two reserved
// entries).
const (
	MaxFAT12 = 0xFF4
	MaxFAT16 = 0xFFF4
	MaxFAT32 = 0xFFFFFF4
)

// Geometry is the fully-resolved layout the sizing solver converges on, ready
// for the volume writer to consume.
type Geometry struct {
	SectorSize        int
	ClusterSize       int
	SectorsPerCluster int
	FATWidth          int
	NumFATs           int
	ReservedSectors   int
	RootEntries       int
	ClusterCount      uint32

	BootSector      uint32
	FirstFAT        uint32
	FATSectors      uint32
	RootDirSector   uint32
	FirstDataSector uint32
	EndOfVolume     uint32
}

// Solve runs the iterative sizing procedure against tree, rebuilding the
// directory layout (via BuildDirectories) once per iteration until the
// (fat_width, cluster_size) pair stabilizes. It returns the resolved Geometry,
// leaving tree's dirBytes populated for the final geometry.
func Solve(tree *Tree, opts *Options) (*Geometry, errors.ImageError) {
	sectorSize := opts.SectorSize

	clusterSize := opts.ClusterSize
	if clusterSize == 0 {
		clusterSize = sectorSize
	}
	if clusterSize < sectorSize {
		clusterSize = sectorSize
	}

	fatWidth := 12
	if opts.FATWidthForced != 0 {
		fatWidth = opts.FATWidthForced
	}

	var userSectors uint32
	hasVolumeSize := opts.VolumeSize > 0
	if hasVolumeSize {
		userSectors = uint32(opts.VolumeSize / int64(sectorSize))
	}

	for {
		clusterCount, err := BuildDirectories(tree, opts.Label, clusterSize, fatWidth)
		if err != nil {
			return nil, err
		}

		sectorsPerCluster := clusterSize / sectorSize

		rootEntries := 0
		if fatWidth != 32 {
			rootEntries = tree.RootDirEntries()
			if opts.RootDirSize > rootEntries {
				rootEntries = opts.RootDirSize
			}
		}

		reservedSectors := opts.ReservedSectors
		minReserved := 1
		if fatWidth == 32 {
			minReserved = 32
		}
		if reservedSectors < minReserved {
			reservedSectors = minReserved
		}

		if opts.FreeSpace > 0 {
			extra := uint32((opts.FreeSpace + int64(clusterSize) - 1) / int64(clusterSize))
			clusterCount += extra
		}

		bootSector := uint32(0)
		if opts.Partitioned {
			spt := opts.SectorsPerTrack
			if spt < 1 {
				spt = 1
			}
			bootSector = uint32(spt)
		}

		geom := computeGeometry(clusterCount, sectorSize, clusterSize, sectorsPerCluster,
			fatWidth, opts.NumFATs, reservedSectors, rootEntries, bootSector)

		if hasVolumeSize {
			if geom.EndOfVolume > userSectors {
				return nil, errors.LayoutImpossible("requested volume_size is too small to hold the requested contents")
			}

			leftover := userSectors - geom.EndOfVolume
			extraClusters := uint32(0)
			if sectorsPerCluster > 0 {
				extraClusters = leftover / uint32(sectorsPerCluster)
			}
			clusterCount += extraClusters

			for {
				geom = computeGeometry(clusterCount, sectorSize, clusterSize, sectorsPerCluster,
					fatWidth, opts.NumFATs, reservedSectors, rootEntries, bootSector)
				if geom.EndOfVolume <= userSectors || clusterCount == 0 {
					break
				}
				clusterCount--
			}
		}

		newFATWidth, newClusterSize, bumpedClusterCount := reevaluate(clusterCount, fatWidth, clusterSize, sectorSize, opts)
		if newFATWidth == fatWidth && newClusterSize == clusterSize && bumpedClusterCount != clusterCount {
			clusterCount = bumpedClusterCount
			geom = computeGeometry(clusterCount, sectorSize, clusterSize, sectorsPerCluster,
				fatWidth, opts.NumFATs, reservedSectors, rootEntries, bootSector)
		}

		if newFATWidth == fatWidth && newClusterSize == clusterSize {
			geom.ClusterCount = clusterCount
			geom.SectorSize = sectorSize
			geom.ClusterSize = clusterSize
			geom.SectorsPerCluster = sectorsPerCluster
			geom.FATWidth = fatWidth
			geom.NumFATs = opts.NumFATs
			geom.ReservedSectors = reservedSectors
			geom.RootEntries = rootEntries
			geom.BootSector = bootSector

			if opts.RootDirSize != 0 && fatWidth != 32 {
				actual := tree.RootDirEntries()
				if actual > opts.RootDirSize {
					return nil, errors.LayoutImpossible("root directory requires more entries than root_dir_size allows")
				}
			}

			return &geom, nil
		}

		if newClusterSize != clusterSize {
			if opts.ClusterSize != 0 || clusterSize >= 128*sectorSize {
				return nil, errors.LayoutImpossible("volume too large")
			}
		}

		fatWidth = newFATWidth
		clusterSize = newClusterSize
	}
}

// computeGeometry derives the remaining layout fields from a candidate
// cluster count.
func computeGeometry(clusterCount uint32, sectorSize, clusterSize, sectorsPerCluster, fatWidth, numFATs, reservedSectors, rootEntries int, bootSector uint32) Geometry {
	firstFAT := bootSector + uint32(reservedSectors)

	fatBits := int64(fatWidth)
	fatSectors := uint32((int64(clusterCount+2)*fatBits + int64(sectorSize)*8 - 1) / (int64(sectorSize) * 8))

	rootDirSector := firstFAT + fatSectors*uint32(numFATs)

	firstDataSector := rootDirSector
	if fatWidth != 32 {
		rootDirBytes := rootEntries * DirentSize
		rootDirSectors := uint32((rootDirBytes + sectorSize - 1) / sectorSize)
		firstDataSector += rootDirSectors
	}

	endOfVolume := firstDataSector + clusterCount*uint32(sectorsPerCluster)

	return Geometry{
		BootSector:      bootSector,
		FirstFAT:        firstFAT,
		FATSectors:      fatSectors,
		RootDirSector:   rootDirSector,
		FirstDataSector: firstDataSector,
		EndOfVolume:     endOfVolume,
	}
}

// reevaluate chooses the FAT width (and, when forced to, a doubled cluster
// size or a bumped cluster count) that fits clusterCount.
func reevaluate(clusterCount uint32, fatWidth, clusterSize, sectorSize int, opts *Options) (newFATWidth, newClusterSize int, bumpedClusterCount uint32) {
	forced := opts.FATWidthForced
	bumpedClusterCount = clusterCount

	switch {
	case clusterCount > MaxFAT32:
		return fatWidth, clusterSize * 2, bumpedClusterCount

	case clusterCount > MaxFAT16:
		if forced == 12 || forced == 16 || sectorSize < 512 {
			return fatWidth, clusterSize * 2, bumpedClusterCount
		}
		return 32, clusterSize, bumpedClusterCount

	case clusterCount > MaxFAT12:
		if forced == 32 {
			return fatWidth, clusterSize, uint32(MaxFAT16 + 1)
		}
		if forced == 12 {
			return fatWidth, clusterSize * 2, bumpedClusterCount
		}
		return 16, clusterSize, bumpedClusterCount

	default:
		if forced == 32 {
			return fatWidth, clusterSize, uint32(MaxFAT16 + 1)
		}
		if forced == 16 {
			return fatWidth, clusterSize, uint32(MaxFAT12 + 1)
		}
		return 12, clusterSize, bumpedClusterCount
	}
}
