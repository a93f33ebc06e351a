package persist

import (
	"bufio"
	"fmt"
	"io"

	"github.com/coreauthz/policyd/policy"
	"github.com/coreauthz/policyd/policyerr"
	"github.com/coreauthz/policyd/storage"
)

// Load reconstructs a MemBackend from sf, in the two phases the on-disk
// format requires (spec.md §4.5): initBuckets first creates every bucket
// named in the index (so a BUCKET policy loaded later can always resolve
// its target, regardless of file order), then loadBuckets fills each one
// in from its own stream.
func Load(sf StreamFactory) (*storage.MemBackend, error) {
	backend := storage.NewMemBackend(policy.DenyResult())

	defs, err := initBuckets(backend, sf)
	if err != nil {
		return nil, err
	}
	if err := loadBuckets(backend, defs, sf); err != nil {
		return nil, err
	}
	return backend, nil
}

// initBuckets reads the index stream up to its blank-line sentinel,
// creating each named bucket with its default result. Returns the bucket
// ids in index order so loadBuckets can report errors against the same
// ordering a human reading the index file would expect.
func initBuckets(backend *storage.MemBackend, sf StreamFactory) ([]string, error) {
	r, err := sf.IndexReader()
	if err != nil {
		return nil, fmt.Errorf("persist: open index for read: %w", err)
	}
	defer r.Close()

	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break // end-of-buckets sentinel
		}
		id, def, err := decodeIndexRecord(line)
		if err != nil {
			return nil, err
		}
		if id == policy.RootBucketID {
			// NewMemBackend always seeds the root bucket; the index record
			// only needs to overwrite its default result.
			if err := backend.UpdateBucket(id, def); err != nil {
				return nil, err
			}
		} else if err := backend.CreateBucket(id, def); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("persist: read index: %w", err)
	}
	return ids, nil
}

// loadBuckets fills in the policies of every bucket named by ids from its
// own stream. A bucket listed in the index with no backing stream is a
// fatal deserialization error (spec.md §4.5, original_source's
// StorageDeserializer.cpp throwing BucketDeserializationException) — a
// missing file means the tree is partial or tampered, and loading it as
// empty would silently drop that bucket's policies (DENY included).
func loadBuckets(backend *storage.MemBackend, ids []string, sf StreamFactory) error {
	for _, id := range ids {
		r, err := sf.BucketReader(id)
		if err != nil {
			return policyerr.NewBucketDeserialization(id)
		}
		if r == nil {
			return policyerr.NewBucketDeserialization(id)
		}
		err = readBucketFile(backend, id, r)
		r.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func readBucketFile(backend *storage.MemBackend, id string, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		p, err := decodePolicyRecord(line)
		if err != nil {
			return err
		}
		if err := backend.InsertPolicy(id, p); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("persist: read bucket %q: %w", id, err)
	}
	return nil
}
