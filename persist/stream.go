package persist

import (
	"io"
	"os"
	"path/filepath"
)

// StreamFactory is the injected opener the spec describes as
// "bucketId → output stream / bucketId → input stream or null"
// (spec.md §4.5), extended with the index stream's own pair. BucketReader
// must return (nil, nil) — not an error — when no file exists for
// bucketID. Either a nil reader or a non-nil error from BucketReader is
// fatal: Load turns both into BucketDeserialization, since a bucket
// named in the index with nothing backing it means the on-disk tree is
// partial or tampered (spec.md §4.5, §7).
type StreamFactory interface {
	IndexWriter() (io.WriteCloser, error)
	IndexReader() (io.ReadCloser, error)
	BucketWriter(bucketID string) (io.WriteCloser, error)
	BucketReader(bucketID string) (io.ReadCloser, error)
}

// DirStreamFactory is the filesystem StreamFactory: an index file plus a
// buckets/ subdirectory, one file per bucket, named per BucketFileName.
type DirStreamFactory struct {
	Dir string
}

func NewDirStreamFactory(dir string) *DirStreamFactory {
	return &DirStreamFactory{Dir: dir}
}

func (f *DirStreamFactory) indexPath() string {
	return filepath.Join(f.Dir, "index")
}

func (f *DirStreamFactory) bucketPath(bucketID string) string {
	return filepath.Join(f.Dir, "buckets", BucketFileName(bucketID))
}

func (f *DirStreamFactory) IndexWriter() (io.WriteCloser, error) {
	return os.Create(f.indexPath())
}

func (f *DirStreamFactory) IndexReader() (io.ReadCloser, error) {
	return os.Open(f.indexPath())
}

func (f *DirStreamFactory) BucketWriter(bucketID string) (io.WriteCloser, error) {
	path := f.bucketPath(bucketID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (f *DirStreamFactory) BucketReader(bucketID string) (io.ReadCloser, error) {
	r, err := os.Open(f.bucketPath(bucketID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}
