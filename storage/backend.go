// Package storage implements the in-memory bucket store (Backend) and the
// public resolver/mutator façade (Storage) described in spec.md §4.3-4.4.
package storage

import (
	"github.com/coreauthz/policyd/policy"
	"github.com/coreauthz/policyd/policyerr"
)

// linkKey identifies one forward BUCKET-typed policy by its source bucket
// and key, for the reverse-link index.
type linkKey struct {
	bucketID string
	key      policy.Key
}

// Backend is the capability set Storage depends on. A narrow interface
// rather than a concrete type lets tests substitute a fake, grounded on
// the teacher's instance.Storage[T] depending on config.InstanceStorage
// rather than a concrete file-backed type, and on the original cynara
// implementation's gmock FakeStorageBackend.
type Backend interface {
	HasBucket(id string) bool
	CreateBucket(id string, def policy.Result) error
	UpdateBucket(id string, def policy.Result) error
	DeleteBucket(id string) error
	SearchBucket(id string, key policy.Key) (policy.Collection, error)
	InsertPolicy(bucketID string, p policy.Policy) error
	DeletePolicy(bucketID string, key policy.Key) error
	ListPolicies(bucketID string, q *policy.Key) (policy.Collection, error)
	Bucket(id string) (*policy.Bucket, bool)
	BucketIDs() []string
}

// MemBackend is the concrete in-memory StorageBackend: owns Buckets and the
// derived reverse-link index (spec.md §4.3).
type MemBackend struct {
	buckets     map[string]*policy.Bucket
	reverseLink map[string]map[linkKey]struct{}
}

// NewMemBackend constructs a backend containing only the root bucket, with
// the given default result for it.
func NewMemBackend(rootDefault policy.Result) *MemBackend {
	b := &MemBackend{
		buckets:     make(map[string]*policy.Bucket),
		reverseLink: make(map[string]map[linkKey]struct{}),
	}
	b.buckets[policy.RootBucketID] = policy.NewBucket(policy.RootBucketID, rootDefault)
	return b
}

// HasBucket reports whether id names an existing bucket.
func (b *MemBackend) HasBucket(id string) bool {
	_, ok := b.buckets[id]
	return ok
}

// Bucket returns the bucket for id, if any, for read-only inspection
// (used by the serializer to walk policies in dump order).
func (b *MemBackend) Bucket(id string) (*policy.Bucket, bool) {
	bk, ok := b.buckets[id]
	return bk, ok
}

// BucketIDs returns every bucket id currently in the store, unordered.
func (b *MemBackend) BucketIDs() []string {
	ids := make([]string, 0, len(b.buckets))
	for id := range b.buckets {
		ids = append(ids, id)
	}
	return ids
}

// CreateBucket fails with BucketAlreadyExists when id is present.
func (b *MemBackend) CreateBucket(id string, def policy.Result) error {
	if b.HasBucket(id) {
		return policyerr.NewBucketAlreadyExists(id)
	}
	b.buckets[id] = policy.NewBucket(id, def)
	return nil
}

// UpdateBucket fails with BucketNotExists when id is absent.
func (b *MemBackend) UpdateBucket(id string, def policy.Result) error {
	bk, ok := b.buckets[id]
	if !ok {
		return policyerr.NewBucketNotExists(id)
	}
	bk.SetDefault(def)
	return nil
}

// DeleteBucket removes the bucket and, atomically, every policy recorded
// in the reverse-link index for id; then erases the reverse-link entry.
// It also drops the reverse-link entries the deleted bucket's own
// BUCKET-typed policies contributed elsewhere — otherwise those entries
// outlive their source bucket and later cascade-delete an unrelated
// policy that happens to reuse the same (bucketID, key) pair.
// Fails with BucketNotExists, or DefaultBucketDeletion for the root.
func (b *MemBackend) DeleteBucket(id string) error {
	if id == policy.RootBucketID {
		return policyerr.NewDefaultBucketDeletion()
	}
	bk, ok := b.buckets[id]
	if !ok {
		return policyerr.NewBucketNotExists(id)
	}
	if err := b.deleteLinking(id); err != nil {
		return err
	}
	for _, p := range bk.Policies() {
		if p.Result.Type == policy.Bucket {
			b.dropReverseLink(p.Result.Metadata, id, p.Key)
		}
	}
	delete(b.buckets, id)
	delete(b.reverseLink, id)
	return nil
}

// SearchBucket returns the filtered view of one bucket against key.
func (b *MemBackend) SearchBucket(id string, key policy.Key) (policy.Collection, error) {
	bk, ok := b.buckets[id]
	if !ok {
		return nil, policyerr.NewBucketNotExists(id)
	}
	return bk.Filtered(key), nil
}

// InsertPolicy inserts p into bucket id; if the result is BUCKET-typed, it
// also records the reverse link.
func (b *MemBackend) InsertPolicy(bucketID string, p policy.Policy) error {
	bk, ok := b.buckets[bucketID]
	if !ok {
		return policyerr.NewBucketNotExists(bucketID)
	}
	// Overwriting an existing policy with a different (or now-absent) link
	// must drop any stale reverse-link entry first.
	if old, existed := bk.Lookup(p.Key); existed && old.Type == policy.Bucket {
		b.dropReverseLink(old.Metadata, bucketID, p.Key)
	}
	bk.InsertPolicy(p)
	if p.Result.Type == policy.Bucket {
		b.addReverseLink(p.Result.Metadata, bucketID, p.Key)
	}
	return nil
}

// DeletePolicy removes the policy for key from bucket id; if the removed
// policy was a BUCKET link, its reverse-link entry is dropped too.
func (b *MemBackend) DeletePolicy(bucketID string, key policy.Key) error {
	bk, ok := b.buckets[bucketID]
	if !ok {
		return policyerr.NewBucketNotExists(bucketID)
	}
	if old, existed := bk.Lookup(key); existed && old.Type == policy.Bucket {
		b.dropReverseLink(old.Metadata, bucketID, key)
	}
	bk.DeletePolicy(key)
	return nil
}

// deleteLinking iterates the reverse-link set for targetID and deletes
// each source policy — used by DeleteBucket to cascade.
func (b *MemBackend) deleteLinking(targetID string) error {
	links, ok := b.reverseLink[targetID]
	if !ok {
		return nil
	}
	for lk := range links {
		bk, ok := b.buckets[lk.bucketID]
		if !ok {
			// Source bucket already gone; nothing to cascade.
			continue
		}
		bk.DeletePolicy(lk.key)
	}
	return nil
}

// ListPolicies returns every policy in bucket id; if q is non-nil, only
// policies whose key equals *q exactly (not wildcard-matched) are
// returned — this is the raw inspection view used by the mutation API's
// listPolicies, distinct from SearchBucket's wildcard-matching view used
// by the resolver.
func (b *MemBackend) ListPolicies(bucketID string, q *policy.Key) (policy.Collection, error) {
	bk, ok := b.buckets[bucketID]
	if !ok {
		return nil, policyerr.NewBucketNotExists(bucketID)
	}
	all := bk.Policies()
	if q == nil {
		return all, nil
	}
	var out policy.Collection
	for _, p := range all {
		if p.Key.Equals(*q) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (b *MemBackend) addReverseLink(target, srcBucket string, key policy.Key) {
	set, ok := b.reverseLink[target]
	if !ok {
		set = make(map[linkKey]struct{})
		b.reverseLink[target] = set
	}
	set[linkKey{bucketID: srcBucket, key: key}] = struct{}{}
}

func (b *MemBackend) dropReverseLink(target, srcBucket string, key policy.Key) {
	set, ok := b.reverseLink[target]
	if !ok {
		return
	}
	delete(set, linkKey{bucketID: srcBucket, key: key})
	if len(set) == 0 {
		delete(b.reverseLink, target)
	}
}

// ReverseLinkCount returns how many source (bucket, key) pairs currently
// point at target via a BUCKET-typed policy. Exposed for tests validating
// the reverse-link consistency invariant (spec.md §8 property 2).
func (b *MemBackend) ReverseLinkCount(target string) int {
	return len(b.reverseLink[target])
}
