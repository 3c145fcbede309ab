// Package fat implements the layout and serialization engine for FAT12/16/32
// image generation: byte packing, 8.3/LFN name policy, DOS timestamp encoding,
// the in-memory directory tree, the sizing solver, and the volume writer.
package fat

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/chasonr/genfatimage/errors"
)

// Attribute flags for a DirEntry. 0x0F is reserved on disk to mark LFN records
// and must never appear in Attrs.
const (
	AttrReadOnly    = 0x01
	AttrHidden      = 0x02
	AttrSystem      = 0x04
	AttrVolumeLabel = 0x08
	AttrDirectory   = 0x10
	AttrArchive     = 0x20

	attrFileMask = AttrReadOnly | AttrHidden | AttrSystem | AttrArchive
)

// HostFile is the host-side file reading capability the external walker feeds
// into AddFile: open, read sequential bytes, size, and the three timestamps.
// The core never calls Open more than once per file.
type HostFile interface {
	Open() (io.ReadCloser, error)
	IsDir() bool
	IsRegular() bool
	Size() (int64, error)
	ModTime() (time.Time, error)
	AccessTime() (time.Time, error)
	CreateTime() (time.Time, error)
}

// DirEntry is one file or directory in the in-memory tree.
type DirEntry struct {
	Name         string
	HostPath     string
	Attrs        uint8
	FirstCluster uint32
	FileSize     uint32

	CreatedTime  time.Time
	ModifiedTime time.Time
	AccessedTime time.Time

	Children []*DirEntry

	host HostFile

	// dirBytes and dirEntryOffset are populated by the layout pass (fat/layout.go).
	dirBytes       []byte
	dirEntryOffset int
}

// IsDir reports whether the entry is a directory.
func (d *DirEntry) IsDir() bool { return d.Attrs&AttrDirectory != 0 }

// Host returns the host-file handle recorded for a regular file, or nil for
// directories and the synthesized root.
func (d *DirEntry) Host() HostFile { return d.host }

// childByName returns the child with the given name under case-insensitive ASCII
// equality, or nil.
func (d *DirEntry) childByName(name string) *DirEntry {
	for _, c := range d.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Tree is the directory tree built by the external walker via AddFile and later
// consumed by the layout pass and volume writer.
type Tree struct {
	Root *DirEntry
}

// NewTree creates an empty tree with a synthesized root directory.
func NewTree() *Tree {
	now := time.Now()
	return &Tree{
		Root: &DirEntry{
			Name:         "",
			Attrs:        AttrDirectory,
			CreatedTime:  now,
			ModifiedTime: now,
			AccessedTime: now,
		},
	}
}

// AddFile adds a host file or directory at inImagePath, creating any missing
// intermediate directories. If inImagePath is empty, it defaults to the base
// name of hostPath.
func (t *Tree) AddFile(hostPath, inImagePath string, attrs uint8, host HostFile) errors.ImageError {
	if inImagePath == "" {
		inImagePath = path.Base(filepathToSlash(hostPath))
	}

	segments := splitPath(inImagePath)
	if len(segments) == 0 {
		return errors.BadInput(hostPath, "in-image path resolves to no usable name")
	}

	dir := t.Root
	for _, seg := range segments[:len(segments)-1] {
		dir = dir.ensureSubdir(seg)
	}

	if host == nil {
		return errors.BadInput(hostPath, "no host file information supplied")
	}

	leaf := segments[len(segments)-1]
	isDir := host.IsDir()

	existing := dir.childByName(leaf)
	if existing != nil {
		if isDir && existing.IsDir() {
			// Merge: the directory already exists as an intermediate node.
			return nil
		}
		return errors.BadInput(hostPath, "an entry named %q already exists", leaf)
	}

	entry := &DirEntry{
		Name:     leaf,
		HostPath: hostPath,
	}

	if isDir {
		entry.Attrs = AttrDirectory
		entry.CreatedTime, entry.ModifiedTime, entry.AccessedTime = hostTimesOrNow(host)
	} else if host.IsRegular() {
		size, err := host.Size()
		if err != nil {
			return errors.Io("cannot stat "+hostPath, err)
		}
		if size < 0 || size > 0xFFFFFFFF {
			return errors.BadInput(hostPath, "file size %d does not fit in 32 bits", size)
		}

		entry.Attrs = attrs & attrFileMask
		entry.FileSize = uint32(size)
		entry.host = host

		created, err := host.CreateTime()
		if err != nil {
			return errors.Io("cannot stat "+hostPath, err)
		}
		modified, err := host.ModTime()
		if err != nil {
			return errors.Io("cannot stat "+hostPath, err)
		}
		accessed, err := host.AccessTime()
		if err != nil {
			return errors.Io("cannot stat "+hostPath, err)
		}
		entry.CreatedTime, entry.ModifiedTime, entry.AccessedTime = created, modified, accessed
	} else {
		return errors.BadInput(hostPath, "cannot add special file")
	}

	dir.Children = append(dir.Children, entry)
	return nil
}

func hostTimesOrNow(host HostFile) (time.Time, time.Time, time.Time) {
	now := time.Now()
	created, err := host.CreateTime()
	if err != nil {
		created = now
	}
	modified, err := host.ModTime()
	if err != nil {
		modified = now
	}
	accessed, err := host.AccessTime()
	if err != nil {
		accessed = now
	}
	return created, modified, accessed
}

// ensureSubdir returns the subdirectory named name under d, creating it
// (synthesized, with current-time timestamps) if it doesn't already exist.
func (d *DirEntry) ensureSubdir(name string) *DirEntry {
	if existing := d.childByName(name); existing != nil {
		return existing
	}
	now := time.Now()
	sub := &DirEntry{
		Name:         name,
		Attrs:        AttrDirectory,
		CreatedTime:  now,
		ModifiedTime: now,
		AccessedTime: now,
	}
	d.Children = append(d.Children, sub)
	return sub
}

func splitPath(p string) []string {
	p = filepathToSlash(p)
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
