// Package osfs implements the fs.FileSystem port against the real
// filesystem, the way flow-go's WAL ultimately reads and writes plain
// os.File handles underneath the prometheus WAL wrapper.
package osfs

import (
	"errors"
	"os"
	"syscall"

	"github.com/dapperlabs/merklix/fs"
)

// FileSystem is the default, real-disk backend.
type FileSystem struct{}

// New returns an os-backed fs.FileSystem.
func New() *FileSystem { return &FileSystem{} }

func (FileSystem) Mkdirp(path string, mode os.FileMode) error {
	return os.MkdirAll(path, mode)
}

func (FileSystem) Readdir(path string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]fs.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, fs.DirEntry{
			Name:   e.Name(),
			IsFile: !e.IsDir(),
			Size:   info.Size(),
		})
	}
	return out, nil
}

func (FileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (FileSystem) Unlink(path string) error {
	return os.Remove(path)
}

func (FileSystem) Rmdir(path string) error {
	err := os.Remove(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOTEMPTY) {
		return fs.ErrNotEmpty
	}
	return err
}

func (FileSystem) Open(path string, create bool) (fs.File, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f}, nil
}

type osFile struct {
	f *os.File
}

func (o *osFile) Size() (int64, error) {
	info, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (o *osFile) ReadAt(buf []byte, offset int64) (int, error) {
	return o.f.ReadAt(buf, offset)
}

func (o *osFile) Append(p []byte) (int64, error) {
	off, err := o.f.Seek(0, os.SEEK_END)
	if err != nil {
		return 0, err
	}
	n, err := o.f.Write(p)
	if err != nil {
		return off, err
	}
	if n != len(p) {
		return off, errors.New("osfs: short write")
	}
	return off, nil
}

func (o *osFile) Truncate(size int64) error {
	return o.f.Truncate(size)
}

func (o *osFile) Sync() error {
	return o.f.Sync()
}

func (o *osFile) Close() error {
	return o.f.Close()
}
