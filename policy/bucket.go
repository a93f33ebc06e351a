package policy

import "sort"

// RootBucketID is the reserved id of the entry-point bucket for every
// lookup. It can never be deleted.
const RootBucketID = ""

// Bucket is the container of policies for one bucket plus the bucket's
// default result. It exposes a small, fixed capability set — filter,
// insert, delete, default — deliberately not a polymorphic hierarchy: one
// concrete shape is all the data model needs (see SPEC_FULL.md §9).
type Bucket struct {
	id       string
	def      Result
	policies map[Key]Result
}

// NewBucket constructs an empty bucket with the given default result.
func NewBucket(id string, def Result) *Bucket {
	return &Bucket{
		id:       id,
		def:      def,
		policies: make(map[Key]Result),
	}
}

// ID returns the bucket's id.
func (b *Bucket) ID() string { return b.id }

// DefaultResult returns the bucket's default result.
func (b *Bucket) DefaultResult() Result { return b.def }

// SetDefault replaces the bucket's default result.
func (b *Bucket) SetDefault(r Result) { b.def = r }

// InsertPolicy adds or overwrites a policy by key.
func (b *Bucket) InsertPolicy(p Policy) {
	b.policies[p.Key] = p.Result
}

// DeletePolicy removes a policy by key. Idempotent: deleting an absent key
// is not an error.
func (b *Bucket) DeletePolicy(key Key) {
	delete(b.policies, key)
}

// Lookup returns the stored result for an exact key match, if any.
func (b *Bucket) Lookup(key Key) (Result, bool) {
	r, ok := b.policies[key]
	return r, ok
}

// Filtered returns every stored policy whose key matches q under the
// wildcard rule (§4.4), in deterministic key order.
func (b *Bucket) Filtered(q Key) Collection {
	var out Collection
	for k, r := range b.policies {
		if k.Matches(q) {
			out = append(out, Policy{Key: k, Result: r})
		}
	}
	sort.Sort(out)
	return out
}

// Policies returns every stored policy in deterministic key order, used by
// the serializer for dump and by listPolicies(id, nil).
func (b *Bucket) Policies() Collection {
	out := make(Collection, 0, len(b.policies))
	for k, r := range b.policies {
		out = append(out, Policy{Key: k, Result: r})
	}
	sort.Sort(out)
	return out
}

// Len reports how many policies are stored in the bucket.
func (b *Bucket) Len() int { return len(b.policies) }

// MostSpecific selects the most specific policy from a non-empty
// Collection under the order defined by Key.MoreSpecificThan. Ties (which
// cannot occur for distinct keys under a total order, since MoreSpecificThan
// is antisymmetric over distinct keys) are resolved by first-occurrence in
// the already key-sorted input.
func (c Collection) MostSpecific() (Policy, bool) {
	if len(c) == 0 {
		return Policy{}, false
	}
	best := c[0]
	for _, p := range c[1:] {
		if p.Key.MoreSpecificThan(best.Key) {
			best = p
		}
	}
	return best, true
}
