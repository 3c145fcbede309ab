package fat

import (
	"encoding/binary"
	"io"
	"os"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/noxer/bytewriter"

	"github.com/chasonr/genfatimage/errors"
)

const sectorBufferSize = 4096

// chainTerminator marks the last cluster of a chain; the writer always uses
// the 28-bit-clean FAT32 encoding and relies on packFAT to truncate it for
// narrower widths.
const chainTerminator = 0x0FFFFFFF

// Write lays out and serializes the whole volume described by geom onto img.
// img must support writes past its current length for formats backed by
// growable files; fixed-size test doubles must be pre-sized to
// geom.EndOfVolume*geom.SectorSize.
func Write(img io.WriteSeeker, tree *Tree, opts *Options, geom *Geometry) errors.ImageError {
	totalBytes := int64(geom.EndOfVolume) * int64(geom.SectorSize)
	if err := extendImage(img, totalBytes); err != nil {
		return errors.Io("cannot extend output image", err)
	}

	if opts.Partitioned {
		if err := writeMBR(img, opts, geom); err != nil {
			return err
		}
	}

	fatTable := []uint32{chainTerminator, chainTerminator}
	clusterUsed := bitmap.New(int(geom.ClusterCount) + 2)
	clusterUsed.Set(0, true)
	clusterUsed.Set(1, true)

	dataOffset := int64(geom.FirstDataSector) * int64(geom.SectorSize)
	rootDirOffset := int64(geom.RootDirSector) * int64(geom.SectorSize)
	rootDirCapacity := int64(geom.FirstDataSector-geom.RootDirSector) * int64(geom.SectorSize)

	var writeDir func(dir *DirEntry, isRoot bool) errors.ImageError
	writeDir = func(dir *DirEntry, isRoot bool) errors.ImageError {
		if isRoot && dir.FirstCluster == 0 {
			if int64(len(dir.dirBytes)) > rootDirCapacity {
				panic("root directory spills into data region")
			}
			if _, err := img.Seek(rootDirOffset, io.SeekStart); err != nil {
				return errors.Io("seek to root directory", err)
			}
			if _, err := img.Write(dir.dirBytes); err != nil {
				return errors.Io("write root directory", err)
			}
		} else {
			numClusters := clustersFor(len(dir.dirBytes), geom.ClusterSize)
			allocateChain(&fatTable, clusterUsed, dir.FirstCluster, numClusters)
			if err := writeClusterContent(img, dataOffset, geom.ClusterSize, dir.FirstCluster, dir.dirBytes); err != nil {
				return errors.Io("write directory contents", err)
			}
		}

		for _, child := range dir.Children {
			if child.IsDir() {
				if err := writeDir(child, false); err != nil {
					return err
				}
			} else if err := writeFile(img, child, &fatTable, clusterUsed, dataOffset, geom.ClusterSize); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeDir(tree.Root, true); err != nil {
		return err
	}

	fatTable[0] = 0x0FFFFF00 | uint32(opts.MediaDescByte())

	fatBytes := packFAT(fatTable, geom.FATWidth)
	for i := 0; i < geom.NumFATs; i++ {
		offset := int64(geom.FirstFAT+uint32(i)*geom.FATSectors) * int64(geom.SectorSize)
		if _, err := img.Seek(offset, io.SeekStart); err != nil {
			return errors.Io("seek to FAT copy", err)
		}
		if _, err := img.Write(fatBytes); err != nil {
			return errors.Io("write FAT copy", err)
		}
	}

	bootSector, err := buildBootSector(opts, geom, tree)
	if err != nil {
		return err
	}
	if _, serr := img.Seek(int64(geom.BootSector)*int64(geom.SectorSize), io.SeekStart); serr != nil {
		return errors.Io("seek to boot sector", serr)
	}
	if _, werr := img.Write(bootSector); werr != nil {
		return errors.Io("write boot sector", werr)
	}

	if geom.FATWidth == 32 {
		fsInfo := buildFSInfo(geom, uint32(len(fatTable)))
		if werr := writeSectorAt(img, geom, int64(geom.BootSector)+1, fsInfo); werr != nil {
			return errors.Io("write FSInfo sector", werr)
		}
		if werr := writeSectorAt(img, geom, int64(geom.BootSector)+6, bootSector); werr != nil {
			return errors.Io("write backup boot sector", werr)
		}
		if werr := writeSectorAt(img, geom, int64(geom.BootSector)+7, fsInfo); werr != nil {
			return errors.Io("write backup FSInfo sector", werr)
		}
	}

	return nil
}

func writeSectorAt(img io.WriteSeeker, geom *Geometry, sectorLBA int64, content []byte) error {
	if _, err := img.Seek(sectorLBA*int64(geom.SectorSize), io.SeekStart); err != nil {
		return err
	}
	_, err := img.Write(content)
	return err
}

// extendImage grows img to size bytes by seeking to the final byte and writing
// a single zero; it relies on the OS to sparse-zero the gap.
func extendImage(img io.WriteSeeker, size int64) error {
	if size <= 0 {
		return nil
	}
	if _, err := img.Seek(size-1, io.SeekStart); err != nil {
		return err
	}
	_, err := img.Write([]byte{0})
	return err
}

// allocateChain extends fatTable (growing it as needed) and marks clusterUsed
// so the cluster chain first_cluster..first_cluster+numClusters-1 exists,
// panicking if a cluster is claimed twice — an internal consistency violation.
func allocateChain(fatTable *[]uint32, clusterUsed bitmap.Bitmap, firstCluster, numClusters uint32) {
	if numClusters == 0 {
		return
	}
	needed := int(firstCluster + numClusters)
	for len(*fatTable) < needed {
		*fatTable = append(*fatTable, 0)
	}
	for i := uint32(0); i < numClusters; i++ {
		idx := firstCluster + i
		if clusterUsed.Get(int(idx)) {
			panic("cluster allocated twice")
		}
		clusterUsed.Set(int(idx), true)
		if i == numClusters-1 {
			(*fatTable)[idx] = chainTerminator
		} else {
			(*fatTable)[idx] = idx + 1
		}
	}
}

func writeClusterContent(img io.WriteSeeker, dataOffset int64, clusterSize int, firstCluster uint32, content []byte) error {
	if firstCluster == 0 || len(content) == 0 {
		return nil
	}
	offset := dataOffset + int64(firstCluster-2)*int64(clusterSize)
	if _, err := img.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := img.Write(content)
	return err
}

// writeFile allocates the chain for a regular file and streams its content
// from the host file in fixed-size chunks: the host is opened and read exactly
// once, and the recorded file size is authoritative even if the host file has
// since changed.
func writeFile(img io.WriteSeeker, file *DirEntry, fatTable *[]uint32, clusterUsed bitmap.Bitmap, dataOffset int64, clusterSize int) errors.ImageError {
	numClusters := clustersFor(int(file.FileSize), clusterSize)
	if numClusters == 0 {
		return nil
	}
	allocateChain(fatTable, clusterUsed, file.FirstCluster, numClusters)

	offset := dataOffset + int64(file.FirstCluster-2)*int64(clusterSize)
	if _, err := img.Seek(offset, io.SeekStart); err != nil {
		return errors.Io("seek to file data for "+file.HostPath, err)
	}

	host := file.Host()
	if host == nil {
		return errors.Io("no host file recorded for "+file.HostPath, nil)
	}
	reader, err := host.Open()
	if err != nil {
		return errors.Io("cannot open "+file.HostPath, err)
	}
	defer reader.Close()

	remaining := int64(file.FileSize)
	buf := make([]byte, sectorBufferSize)
	for remaining > 0 {
		chunk := buf
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		n, rerr := io.ReadFull(reader, chunk)
		if n > 0 {
			if _, werr := img.Write(chunk[:n]); werr != nil {
				return errors.Io("write file data for "+file.HostPath, werr)
			}
			remaining -= int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				// Host file shrank since enumeration; leave the rest of the
				// final cluster as whatever extendImage already zeroed.
				break
			}
			return errors.Io("read file data for "+file.HostPath, rerr)
		}
	}
	return nil
}

// packFAT serializes the in-memory FAT slice into its on-disk byte encoding.
func packFAT(fatTable []uint32, fatWidth int) []byte {
	switch fatWidth {
	case 12:
		return packFAT12(fatTable)
	case 16:
		out := make([]byte, len(fatTable)*2)
		for i, entry := range fatTable {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(entry))
		}
		return out
	default:
		out := make([]byte, len(fatTable)*4)
		for i, entry := range fatTable {
			binary.LittleEndian.PutUint32(out[i*4:], entry&0x0FFFFFFF)
		}
		return out
	}
}

// packFAT12 packs 12-bit entries two-to-three-bytes. The trailing unpaired
// entry, when the table has an odd length, is written as 2 bytes of its low
// 12 bits, with the top nibble of the second byte left as whatever the
// (nonexistent) next entry's low nibble would have been, i.e. 0.
func packFAT12(fatTable []uint32) []byte {
	n := len(fatTable)
	out := make([]byte, (n*3+1)/2)
	i := 0
	for ; i+1 < n; i += 2 {
		e0 := fatTable[i] & 0xFFF
		e1 := fatTable[i+1] & 0xFFF
		base := i / 2 * 3
		out[base] = byte(e0 & 0xFF)
		out[base+1] = byte((e0>>8)&0x0F) | byte((e1&0x0F)<<4)
		out[base+2] = byte((e1 >> 4) & 0xFF)
	}
	if i < n {
		e0 := fatTable[i] & 0xFFF
		base := i / 2 * 3
		binary.LittleEndian.PutUint16(out[base:], uint16(e0))
	}
	return out
}

// writeMBR emits a single active-partition MBR at the start of img.
func writeMBR(img io.WriteSeeker, opts *Options, geom *Geometry) errors.ImageError {
	mbr := make([]byte, 512)

	firstLBA := geom.BootSector
	lastLBA := geom.EndOfVolume - 1
	headF, secF, cylF := chsEncode(firstLBA, opts.SectorsPerTrack, opts.NumHeads)
	headL, secL, cylL := chsEncode(lastLBA, opts.SectorsPerTrack, opts.NumHeads)

	rec := make([]byte, 16)
	writer := bytewriter.New(rec)
	writer.Write([]byte{0x00}) // boot flag; genfatimage always writes 0x00 here.
	writer.Write([]byte{headF, secF, cylF})
	writer.Write([]byte{partitionType(geom.FATWidth, geom.EndOfVolume-geom.BootSector)})
	writer.Write([]byte{headL, secL, cylL})
	binary.Write(writer, binary.LittleEndian, firstLBA)
	binary.Write(writer, binary.LittleEndian, geom.EndOfVolume-geom.BootSector)
	copy(mbr[0x1BE:0x1BE+16], rec)

	mbr[510] = 0x55
	mbr[511] = 0xAA

	if _, err := img.Seek(0, io.SeekStart); err != nil {
		return errors.Io("seek to MBR", err)
	}
	if _, err := img.Write(mbr); err != nil {
		return errors.Io("write MBR", err)
	}
	return nil
}

// chsEncode converts an LBA into the packed (head, sector|cylHi, cylLo) triple
// used by MBR partition records.
func chsEncode(lba uint32, sectorsPerTrack, numHeads int) (head, sector, cyl byte) {
	spt := uint32(sectorsPerTrack)
	heads := uint32(numHeads)
	if spt == 0 {
		spt = 1
	}
	if heads == 0 {
		heads = 1
	}

	s := lba%spt + 1
	h := (lba / spt) % heads
	c := (lba / spt) / heads

	sector = byte(s&0x3F) | byte((c>>2)&0xC0)
	cyl = byte(c & 0xFF)
	head = byte(h)
	return head, sector, cyl
}

func partitionType(fatWidth int, sizeInSectors uint32) byte {
	switch fatWidth {
	case 12:
		return 0x01
	case 16:
		if sizeInSectors >= 65536 {
			return 0x06
		}
		return 0x04
	default:
		return 0x0C
	}
}

// buildBootSector synthesizes or overlays the boot sector and its BPB, adding
// the FAT32-only extended fields when geom.FATWidth is 32. tree supplies the
// root directory's first cluster for the FAT32 BPB's root-cluster field.
func buildBootSector(opts *Options, geom *Geometry, tree *Tree) ([]byte, errors.ImageError) {
	sector := make([]byte, geom.SectorSize)

	if opts.BootRecord != "" {
		raw, err := os.ReadFile(opts.BootRecord)
		if err != nil {
			return nil, errors.Io("cannot read boot_record "+opts.BootRecord, err)
		}
		copy(sector, raw)
	} else {
		sector[0], sector[1], sector[2] = 0xEB, 0x58, 0x90
		if len(sector) > 0x5C {
			sector[0x5A], sector[0x5B] = 0xEB, 0xFE
		}
		if geom.SectorSize >= 512 {
			sector[0x1FE], sector[0x1FF] = 0x55, 0xAA
		}
	}

	WriteString(sector[0x03:0x0B], opts.OEMName)
	binary.LittleEndian.PutUint16(sector[0x0B:0x0D], uint16(geom.SectorSize))
	sector[0x0D] = byte(geom.SectorsPerCluster)
	binary.LittleEndian.PutUint16(sector[0x0E:0x10], uint16(geom.ReservedSectors))
	sector[0x10] = byte(geom.NumFATs)

	rootEntryCount := uint16(0)
	if geom.FATWidth != 32 {
		rootDirSectors := geom.FirstDataSector - geom.RootDirSector
		rootEntryCount = uint16(int64(rootDirSectors) * int64(geom.SectorSize) / DirentSize)
	}
	binary.LittleEndian.PutUint16(sector[0x11:0x13], rootEntryCount)

	totalSectors := geom.EndOfVolume - geom.BootSector
	smallCount := uint16(0)
	if totalSectors < 65535 {
		smallCount = uint16(totalSectors)
	}
	binary.LittleEndian.PutUint16(sector[0x13:0x15], smallCount)

	sector[0x15] = opts.MediaDescByte()

	fatSectors16 := uint16(0)
	if geom.FATWidth != 32 {
		fatSectors16 = uint16(geom.FATSectors)
	}
	binary.LittleEndian.PutUint16(sector[0x16:0x18], fatSectors16)

	binary.LittleEndian.PutUint16(sector[0x18:0x1A], uint16(opts.SectorsPerTrack))
	binary.LittleEndian.PutUint16(sector[0x1A:0x1C], uint16(opts.NumHeads))
	binary.LittleEndian.PutUint32(sector[0x1C:0x20], geom.BootSector)

	if smallCount == 0 {
		binary.LittleEndian.PutUint32(sector[0x20:0x24], totalSectors)
	} else {
		binary.LittleEndian.PutUint32(sector[0x20:0x24], 0)
	}

	extOffset := 0x24
	if geom.FATWidth == 32 {
		extOffset = 0x40
		binary.LittleEndian.PutUint32(sector[0x24:0x28], geom.FATSectors)
		sector[0x28], sector[0x29], sector[0x2A] = 0, 0, 0
		binary.LittleEndian.PutUint32(sector[0x2C:0x30], tree.Root.FirstCluster)
		binary.LittleEndian.PutUint16(sector[0x30:0x32], 1)
		binary.LittleEndian.PutUint16(sector[0x32:0x34], 6)
		for i := 0x34; i < 0x40; i++ {
			sector[i] = 0
		}
	}

	sector[extOffset] = 0x00
	if opts.Partitioned {
		sector[extOffset] = 0x80
	}
	sector[extOffset+1] = 0
	sector[extOffset+2] = 0x29
	binary.LittleEndian.PutUint32(sector[extOffset+3:extOffset+7], opts.ParseSerial())
	WriteString(sector[extOffset+7:extOffset+18], opts.Label)
	fatLabel := map[int]string{12: "FAT12   ", 16: "FAT16   ", 32: "FAT32   "}[geom.FATWidth]
	copy(sector[extOffset+18:extOffset+26], fatLabel)

	return sector, nil
}

// buildFSInfo builds the FAT32 FSInfo sector.
func buildFSInfo(geom *Geometry, fatLength uint32) []byte {
	sector := make([]byte, geom.SectorSize)
	copy(sector[0:4], "RRaA")
	copy(sector[484:488], "rrAa")
	freeClusters := geom.ClusterCount + 2 - fatLength
	binary.LittleEndian.PutUint32(sector[488:492], freeClusters)
	binary.LittleEndian.PutUint32(sector[492:496], fatLength+2)
	sector[510] = 0x55
	sector[511] = 0xAA
	return sector
}
