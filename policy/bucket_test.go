package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketInsertLookupDelete(t *testing.T) {
	b := NewBucket(RootBucketID, DenyResult())
	key := NewKey("app", "alice", "camera")

	_, ok := b.Lookup(key)
	assert.False(t, ok)

	b.InsertPolicy(NewPolicy(key, AllowResult()))
	r, ok := b.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, Allow, r.Type)

	b.DeletePolicy(key)
	_, ok = b.Lookup(key)
	assert.False(t, ok)
}

func TestBucketDeleteIsIdempotent(t *testing.T) {
	b := NewBucket(RootBucketID, DenyResult())
	assert.NotPanics(t, func() {
		b.DeletePolicy(NewKey("x", "y", "z"))
	})
}

func TestBucketInsertOverwrites(t *testing.T) {
	b := NewBucket(RootBucketID, DenyResult())
	key := NewKey("app", "alice", "camera")
	b.InsertPolicy(NewPolicy(key, AllowResult()))
	b.InsertPolicy(NewPolicy(key, DenyResult()))

	r, ok := b.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, Deny, r.Type)
	assert.Equal(t, 1, b.Len())
}

func TestBucketFilteredAppliesWildcardRule(t *testing.T) {
	b := NewBucket(RootBucketID, DenyResult())
	b.InsertPolicy(NewPolicy(NewKey("app", Wildcard, "camera"), AllowResult()))
	b.InsertPolicy(NewPolicy(NewKey("app", "alice", "mic"), AllowResult()))

	matches := b.Filtered(NewKey("app", "alice", "camera"))
	require.Len(t, matches, 1)
	assert.Equal(t, "camera", matches[0].Key.Privilege)
}

func TestBucketFilteredIsSorted(t *testing.T) {
	b := NewBucket(RootBucketID, DenyResult())
	b.InsertPolicy(NewPolicy(NewKey("zeta", Wildcard, Wildcard), AllowResult()))
	b.InsertPolicy(NewPolicy(NewKey("alpha", Wildcard, Wildcard), AllowResult()))

	matches := b.Filtered(NewKey("alpha", "x", "y"))
	for i := 1; i < len(matches); i++ {
		assert.True(t, matches[i-1].Key.Compare(matches[i].Key) <= 0)
	}
}

func TestCollectionMostSpecificPicksMostConcrete(t *testing.T) {
	c := Collection{
		NewPolicy(NewKey("app", Wildcard, Wildcard), AllowResult()),
		NewPolicy(NewKey("app", "alice", Wildcard), DenyResult()),
	}
	best, ok := c.MostSpecific()
	require.True(t, ok)
	assert.Equal(t, "alice", best.Key.User)
}

func TestCollectionMostSpecificEmpty(t *testing.T) {
	var c Collection
	_, ok := c.MostSpecific()
	assert.False(t, ok)
}

func TestBucketPoliciesReturnsAllSorted(t *testing.T) {
	b := NewBucket(RootBucketID, DenyResult())
	b.InsertPolicy(NewPolicy(NewKey("b", "u", "p"), AllowResult()))
	b.InsertPolicy(NewPolicy(NewKey("a", "u", "p"), AllowResult()))

	all := b.Policies()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Key.Client)
	assert.Equal(t, "b", all[1].Key.Client)
}
