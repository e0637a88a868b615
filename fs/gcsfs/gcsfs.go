// Package gcsfs implements the fs.FileSystem port on top of a Google
// Cloud Storage bucket, for stores that want their append-only files
// held in object storage rather than on local disk. GCS objects are
// immutable, so each File buffers its appended bytes in memory and
// rewrites the whole object on Sync/Close; this is appropriate for the
// store's per-file sizes (capped at MAX_FILE_SIZE, §4.2) but is not a
// general-purpose streaming append.
package gcsfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"sort"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/dapperlabs/merklix/fs"
)

// FileSystem addresses objects under bucket/prefix.
type FileSystem struct {
	client *storage.Client
	bucket string
	ctx    context.Context
}

// New returns a GCS-backed fs.FileSystem rooted at bucket.
func New(ctx context.Context, client *storage.Client, bucket string) *FileSystem {
	return &FileSystem{client: client, bucket: bucket, ctx: ctx}
}

func (g *FileSystem) object(p string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path.Clean(p))
}

// Mkdirp is a no-op: GCS has no real directories, only object-name
// prefixes, so there is nothing to create ahead of time.
func (g *FileSystem) Mkdirp(string, os.FileMode) error { return nil }

func (g *FileSystem) Readdir(p string) ([]fs.DirEntry, error) {
	prefix := path.Clean(p) + "/"
	it := g.client.Bucket(g.bucket).Objects(g.ctx, &storage.Query{
		Prefix:    prefix,
		Delimiter: "/",
	})
	var out []fs.DirEntry
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, fs.DirEntry{
			Name:   path.Base(attrs.Name),
			IsFile: true,
			Size:   attrs.Size,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *FileSystem) Rename(oldpath, newpath string) error {
	src := g.object(oldpath)
	dst := g.object(newpath)
	if _, err := dst.CopierFrom(src).Run(g.ctx); err != nil {
		return err
	}
	return src.Delete(g.ctx)
}

func (g *FileSystem) Unlink(p string) error {
	return g.object(p).Delete(g.ctx)
}

func (g *FileSystem) Rmdir(p string) error {
	entries, err := g.Readdir(p)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fs.ErrNotEmpty
	}
	return nil
}

func (g *FileSystem) Open(p string, create bool) (fs.File, error) {
	obj := g.object(p)
	var data []byte
	r, err := obj.NewReader(g.ctx)
	switch {
	case err == nil:
		defer r.Close()
		data, err = io.ReadAll(r)
		if err != nil {
			return nil, err
		}
	case create:
		data = nil
	default:
		return nil, err
	}
	return &gcsFile{fs: g, obj: obj, data: data}, nil
}

type gcsFile struct {
	mu   sync.Mutex
	fs   *FileSystem
	obj  *storage.ObjectHandle
	data []byte
}

func (f *gcsFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}

func (f *gcsFile) ReadAt(buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= int64(len(f.data)) {
		return 0, os.ErrInvalid
	}
	n := copy(buf, f.data[offset:])
	return n, nil
}

func (f *gcsFile) Append(p []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off := int64(len(f.data))
	f.data = append(f.data, p...)
	return off, nil
}

func (f *gcsFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

// Sync rewrites the whole object from the buffered bytes.
func (f *gcsFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.obj.NewWriter(f.fs.ctx)
	if _, err := io.Copy(w, bytes.NewReader(f.data)); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (f *gcsFile) Close() error {
	return f.Sync()
}
