// Package host walks host filesystem paths and feeds (host_path, in_image_path,
// attrs) tuples, backed by a simple open/read/stat HostFile, into the core's
// directory tree.
package host

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chasonr/genfatimage/errors"
	"github.com/chasonr/genfatimage/fat"
)

// osFile adapts os.FileInfo/os.Open to fat.HostFile.
type osFile struct {
	path string
	info os.FileInfo
}

func newOSFile(path string, info os.FileInfo) *osFile {
	return &osFile{path: path, info: info}
}

func (f *osFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

func (f *osFile) IsDir() bool { return f.info.IsDir() }

func (f *osFile) IsRegular() bool { return f.info.Mode().IsRegular() }

func (f *osFile) Size() (int64, error) { return f.info.Size(), nil }

func (f *osFile) ModTime() (time.Time, error) { return f.info.ModTime(), nil }

// AccessTime and CreateTime fall back to ModTime: the precise values live in
// platform-specific stat_t fields os.FileInfo doesn't expose portably.
func (f *osFile) AccessTime() (time.Time, error) { return f.info.ModTime(), nil }

func (f *osFile) CreateTime() (time.Time, error) { return f.info.ModTime(), nil }

// AddPath walks hostPath (a file or a directory tree) and adds every entry it
// finds to tree, rooted at inImagePath. attrs is applied to every regular file
// found; directories always get attrs=directory regardless.
func AddPath(tree *fat.Tree, hostPath, inImagePath string, attrs uint8) errors.ImageError {
	info, err := os.Lstat(hostPath)
	if err != nil {
		return errors.Io("cannot stat "+hostPath, err)
	}

	if inImagePath == "" {
		inImagePath = filepath.Base(hostPath)
	}

	if !info.IsDir() {
		return tree.AddFile(hostPath, inImagePath, attrs, newOSFile(hostPath, info))
	}

	if err := tree.AddFile(hostPath, inImagePath, attrs, newOSFile(hostPath, info)); err != nil {
		return err
	}

	entries, rerr := os.ReadDir(hostPath)
	if rerr != nil {
		return errors.Io("cannot read directory "+hostPath, rerr)
	}
	for _, entry := range entries {
		childHostPath := filepath.Join(hostPath, entry.Name())
		childImagePath := inImagePath + "/" + entry.Name()
		if err := AddPath(tree, childHostPath, childImagePath, attrs); err != nil {
			return err
		}
	}
	return nil
}
