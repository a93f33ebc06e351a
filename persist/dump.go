package persist

import (
	"fmt"
	"io"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/coreauthz/policyd/storage"
)

// Dump writes the index stream from sf.IndexWriter, then one stream per
// bucket via sf.BucketWriter, in deterministic key order (spec.md §4.5).
// Per-bucket writes are independent of one another by construction, so
// they run concurrently through golang.org/x/sync/errgroup — the one
// concurrency primitive the teacher pack already depends on — even
// though the surrounding engine is itself single-threaded (spec.md §5):
// Dump is the one actor driving all of these writes, just fanned out.
func Dump(backend *storage.MemBackend, sf StreamFactory) error {
	ids := backend.BucketIDs()
	sort.Strings(ids)

	idxW, err := sf.IndexWriter()
	if err != nil {
		return fmt.Errorf("persist: open index for write: %w", err)
	}
	defer idxW.Close()

	for _, id := range ids {
		bk, _ := backend.Bucket(id)
		if _, err := io.WriteString(idxW, encodeIndexRecord(id, bk.DefaultResult())); err != nil {
			return fmt.Errorf("persist: write index record for %q: %w", id, err)
		}
	}
	// Terminal blank line: the end-of-buckets sentinel the loader's
	// initBuckets stops on (spec.md §4.5, verified by scenario S5).
	if _, err := io.WriteString(idxW, recordSeparator); err != nil {
		return fmt.Errorf("persist: write index sentinel: %w", err)
	}
	if err := idxW.Close(); err != nil {
		return fmt.Errorf("persist: close index: %w", err)
	}

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return dumpBucket(backend, id, sf)
		})
	}
	return g.Wait()
}

func dumpBucket(backend *storage.MemBackend, id string, sf StreamFactory) error {
	bk, ok := backend.Bucket(id)
	if !ok {
		return fmt.Errorf("persist: bucket %q vanished during dump", id)
	}
	w, err := sf.BucketWriter(id)
	if err != nil {
		return fmt.Errorf("persist: open bucket %q for write: %w", id, err)
	}
	defer w.Close()

	for _, p := range bk.Policies() {
		if _, err := io.WriteString(w, encodePolicyRecord(p)); err != nil {
			return fmt.Errorf("persist: write policy record in bucket %q: %w", id, err)
		}
	}
	return w.Close()
}
