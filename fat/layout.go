package fat

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"

	"github.com/chasonr/genfatimage/errors"
)

// DirentSize is the length, in bytes, of every on-disk directory record,
// long-name or short-name alike.
const DirentSize = 32

const lfnAttr = 0x0F
const lfnLastFlag = 0x40
const lfnMaxUnits = 255

// lfnOffsets is the set of byte offsets within an LFN record holding its 13
// UTF-16 code units.
var lfnOffsets = [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

var utf16LECodec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeUTF16Units converts name into its UTF-16LE code units.
func encodeUTF16Units(name string) ([]uint16, error) {
	raw, err := utf16LECodec.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, err
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return units, nil
}

// BuildDirectories runs a two-pass recursive layout over tree, starting cluster
// numbering at 2. It rebuilds every directory's dirBytes from scratch and
// returns the number of data clusters consumed by the whole tree (cluster
// count, not including the 2 reserved entries).
func BuildDirectories(tree *Tree, volumeLabel string, clusterSize int, fatWidth int) (uint32, errors.ImageError) {
	cluster := uint32(2)

	var layoutDir func(dir *DirEntry, isRoot bool, dotDotCluster uint32) errors.ImageError
	layoutDir = func(dir *DirEntry, isRoot bool, dotDotCluster uint32) errors.ImageError {
		dir.dirBytes = nil

		if isRoot {
			if fatWidth != 32 {
				dir.FirstCluster = 0
			} else if len(dir.Children) == 0 {
				dir.FirstCluster = 0
			} else {
				dir.FirstCluster = cluster
			}
		} else {
			dir.FirstCluster = cluster
		}

		if isRoot {
			if volumeLabel != "" {
				rec := make([]byte, DirentSize)
				WriteString(rec[0:11], volumeLabel)
				rec[11] = AttrVolumeLabel
				dir.dirBytes = append(dir.dirBytes, rec...)
			}
		} else {
			dir.dirBytes = append(dir.dirBytes, makeDotEntry(".", dir.FirstCluster)...)
			dir.dirBytes = append(dir.dirBytes, makeDotEntry("..", dotDotCluster)...)
		}

		taken := map[NormalizedShortName]bool{}
		for _, child := range dir.Children {
			if IsShortName(child.Name) {
				taken[NormalizeShortName(child.Name)] = true
			}
		}

		for _, child := range dir.Children {
			var shortName NormalizedShortName
			caseFlags := byte(0)

			if IsShortName(child.Name) {
				shortName = NormalizeShortName(child.Name)
				caseFlags = shortNameCaseFlags(child.Name)
			} else {
				units, err := encodeUTF16Units(child.Name)
				if err != nil {
					return errors.BadInput(child.HostPath, "cannot encode name %q: %s", child.Name, err)
				}
				if len(units) > lfnMaxUnits {
					return errors.BadInput(child.HostPath, "name %q exceeds %d UTF-16 units", child.Name, lfnMaxUnits)
				}

				alias, aerr := MakeShortAlias(child.Name, taken)
				if aerr != nil {
					return errors.BadInput(child.HostPath, "%s", aerr)
				}
				shortName = alias

				checksum := ShortNameChecksum(shortName)
				dir.dirBytes = append(dir.dirBytes, buildLFNRecords(units, checksum)...)
			}

			child.dirEntryOffset = len(dir.dirBytes)
			dir.dirBytes = append(dir.dirBytes, buildShortNameRecord(child, shortName, caseFlags)...)
		}

		if dir.FirstCluster != 0 {
			cluster += clustersFor(len(dir.dirBytes), clusterSize)
		}

		for _, child := range dir.Children {
			if child.IsDir() {
				childDotDot := dir.FirstCluster
				if isRoot {
					childDotDot = 0
				}
				if err := layoutDir(child, false, childDotDot); err != nil {
					return err
				}
			} else {
				numClusters := clustersFor(int(child.FileSize), clusterSize)
				if numClusters > 0 {
					child.FirstCluster = cluster
					cluster += numClusters
				}
			}
		}

		for _, child := range dir.Children {
			patchFirstCluster(dir.dirBytes, child.dirEntryOffset, child.FirstCluster)
		}

		return nil
	}

	if err := layoutDir(tree.Root, true, 0); err != nil {
		return 0, err
	}
	return cluster - 2, nil
}

// RootDirEntries returns the number of 32-byte records the root directory
// occupies after the most recent BuildDirectories call.
func (t *Tree) RootDirEntries() int {
	return len(t.Root.dirBytes) / DirentSize
}

// clustersFor returns ceil(size/clusterSize), at least 0.
func clustersFor(size, clusterSize int) uint32 {
	if size <= 0 {
		return 0
	}
	n := (size + clusterSize - 1) / clusterSize
	return uint32(n)
}

func makeDotEntry(name string, firstCluster uint32) []byte {
	rec := make([]byte, DirentSize)
	WriteString(rec[0:11], name)
	rec[11] = AttrDirectory
	binary.LittleEndian.PutUint16(rec[20:22], uint16(firstCluster>>16))
	binary.LittleEndian.PutUint16(rec[26:28], uint16(firstCluster))
	return rec
}

func buildLFNRecords(units []uint16, checksum byte) []byte {
	numSegments := (len(units) + 12) / 13
	out := make([]byte, 0, numSegments*DirentSize)

	for seg := numSegments; seg >= 1; seg-- {
		rec := make([]byte, DirentSize)
		seq := byte(seg)
		if seg == numSegments {
			seq |= lfnLastFlag
		}
		rec[0] = seq
		rec[11] = lfnAttr
		rec[12] = 0
		rec[13] = checksum

		base := (seg - 1) * 13
		for i := 0; i < 13; i++ {
			var unit uint16
			if base+i < len(units) {
				unit = units[base+i]
			}
			binary.LittleEndian.PutUint16(rec[lfnOffsets[i]:], unit)
		}
		out = append(out, rec...)
	}
	return out
}

func buildShortNameRecord(child *DirEntry, shortName NormalizedShortName, caseFlags byte) []byte {
	rec := make([]byte, DirentSize)
	copy(rec[0:11], shortName[:])
	rec[11] = child.Attrs
	rec[12] = caseFlags

	ctime := EncodeTimestamp(child.CreatedTime)
	rec[13] = ctime.Centiseconds
	binary.LittleEndian.PutUint16(rec[14:16], ctime.Time)
	binary.LittleEndian.PutUint16(rec[16:18], ctime.Date)

	binary.LittleEndian.PutUint16(rec[18:20], EncodeDate(child.AccessedTime))

	mtime := EncodeTimestamp(child.ModifiedTime)
	binary.LittleEndian.PutUint16(rec[22:24], mtime.Time)
	binary.LittleEndian.PutUint16(rec[24:26], mtime.Date)

	if !child.IsDir() {
		binary.LittleEndian.PutUint32(rec[28:32], child.FileSize)
	}

	return rec
}

func patchFirstCluster(dirBytes []byte, offset int, firstCluster uint32) {
	binary.LittleEndian.PutUint16(dirBytes[offset+20:offset+22], uint16(firstCluster>>16))
	binary.LittleEndian.PutUint16(dirBytes[offset+26:offset+28], uint16(firstCluster))
}

// shortNameCaseFlags computes the NT-reserved case bits for a name that is
// already a valid short name on input: bit 3 if the stem had any lowercase
// ASCII, bit 4 if the extension did.
func shortNameCaseFlags(name string) byte {
	stem, ext := name, ""
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			stem, ext = name[:i], name[i+1:]
			break
		}
	}

	var flags byte
	if hasLower(stem) {
		flags |= 0x08
	}
	if hasLower(ext) {
		flags |= 0x10
	}
	return flags
}

func hasLower(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'a' && s[i] <= 'z' {
			return true
		}
	}
	return false
}
