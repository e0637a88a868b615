// Package memfs is an in-memory implementation of the fs.FileSystem port
// (spec §1: "the optional in-memory filesystem used for testing"), so
// store and tree-engine tests run without touching disk.
package memfs

import (
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/dapperlabs/merklix/fs"
)

// FileSystem is a process-local, mutex-guarded directory tree of byte
// buffers. Construct one with New; the zero value has nil maps and is not
// usable.
type FileSystem struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]*buffer
}

// New returns an empty in-memory filesystem.
func New() *FileSystem {
	return &FileSystem{
		dirs:  map[string]bool{"": true, "/": true},
		files: map[string]*buffer{},
	}
}

type buffer struct {
	mu   sync.Mutex
	data []byte
}

func clean(p string) string { return path.Clean(p) }

func (m *FileSystem) Mkdirp(p string, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[clean(p)] = true
	return nil
}

func (m *FileSystem) Readdir(p string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	if !m.dirs[p] {
		return nil, os.ErrNotExist
	}
	var names []string
	for name := range m.files {
		if path.Dir(name) == p {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]fs.DirEntry, 0, len(names))
	for _, name := range names {
		out = append(out, fs.DirEntry{
			Name:   path.Base(name),
			IsFile: true,
			Size:   int64(len(m.files[name].data)),
		})
	}
	return out, nil
}

func (m *FileSystem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldpath, newpath = clean(oldpath), clean(newpath)
	if b, ok := m.files[oldpath]; ok {
		m.files[newpath] = b
		delete(m.files, oldpath)
		return nil
	}
	if m.dirs[oldpath] {
		m.dirs[newpath] = true
		delete(m.dirs, oldpath)
		for name, b := range m.files {
			if strings.HasPrefix(name, oldpath+"/") {
				m.files[newpath+strings.TrimPrefix(name, oldpath)] = b
				delete(m.files, name)
			}
		}
		return nil
	}
	return os.ErrNotExist
}

func (m *FileSystem) Unlink(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	if _, ok := m.files[p]; !ok {
		return os.ErrNotExist
	}
	delete(m.files, p)
	return nil
}

func (m *FileSystem) Rmdir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	for name := range m.files {
		if path.Dir(name) == p {
			return fs.ErrNotEmpty
		}
	}
	delete(m.dirs, p)
	return nil
}

func (m *FileSystem) Open(p string, create bool) (fs.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	b, ok := m.files[p]
	if !ok {
		if !create {
			return nil, os.ErrNotExist
		}
		b = &buffer{}
		m.files[p] = b
		m.dirs[path.Dir(p)] = true
	}
	return &memFile{buf: b}, nil
}

type memFile struct {
	buf *buffer
}

func (f *memFile) Size() (int64, error) {
	f.buf.mu.Lock()
	defer f.buf.mu.Unlock()
	return int64(len(f.buf.data)), nil
}

func (f *memFile) ReadAt(buf []byte, offset int64) (int, error) {
	f.buf.mu.Lock()
	defer f.buf.mu.Unlock()
	if offset >= int64(len(f.buf.data)) {
		return 0, os.ErrInvalid
	}
	n := copy(buf, f.buf.data[offset:])
	return n, nil
}

func (f *memFile) Append(p []byte) (int64, error) {
	f.buf.mu.Lock()
	defer f.buf.mu.Unlock()
	off := int64(len(f.buf.data))
	f.buf.data = append(f.buf.data, p...)
	return off, nil
}

func (f *memFile) Truncate(size int64) error {
	f.buf.mu.Lock()
	defer f.buf.mu.Unlock()
	if size <= int64(len(f.buf.data)) {
		f.buf.data = f.buf.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.buf.data)
	f.buf.data = grown
	return nil
}

func (f *memFile) Sync() error { return nil }
func (f *memFile) Close() error { return nil }
