package fat

import (
	"bytes"
	"io"
	"time"
)

// fakeHostFile is an in-memory HostFile used by tests, standing in for the
// external filesystem-walking collaborator.
type fakeHostFile struct {
	dir     bool
	content []byte
	modTime time.Time
}

func newFakeFile(content string, modTime time.Time) *fakeHostFile {
	return &fakeHostFile{content: []byte(content), modTime: modTime}
}

func newFakeDir() *fakeHostFile {
	return &fakeHostFile{dir: true}
}

func (f *fakeHostFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.content)), nil
}

func (f *fakeHostFile) IsDir() bool      { return f.dir }
func (f *fakeHostFile) IsRegular() bool  { return !f.dir }
func (f *fakeHostFile) Size() (int64, error) { return int64(len(f.content)), nil }
func (f *fakeHostFile) ModTime() (time.Time, error)    { return f.modTime, nil }
func (f *fakeHostFile) AccessTime() (time.Time, error) { return f.modTime, nil }
func (f *fakeHostFile) CreateTime() (time.Time, error) { return f.modTime, nil }
