// Package policy implements the value types of the authorization-decision
// engine: policy keys, results, types, and the bucket container that holds
// them. None of the types here know about the bucket graph or the store;
// that lives in package storage.
package policy

import "strings"

// Wildcard is the one-directional wildcard token. A stored key feature
// equal to Wildcard matches any query value in that position; a query
// itself never contains Wildcard as a wildcard — it is allowed as a literal
// value and then matches only itself.
const Wildcard = "*"

// Key is the (client, user, privilege) triple identifying a subject x
// object pair. Equality is plain string equality on all three features;
// Wildcard is not special for equality, only for Matches.
type Key struct {
	Client    string
	User      string
	Privilege string
}

// NewKey constructs a Key from its three features.
func NewKey(client, user, privilege string) Key {
	return Key{Client: client, User: user, Privilege: privilege}
}

// Equals reports whether two keys have identical features.
func (k Key) Equals(other Key) bool {
	return k.Client == other.Client && k.User == other.User && k.Privilege == other.Privilege
}

// Matches reports whether the receiver, used as a stored policy key,
// matches the query key q. A feature matches if the receiver's feature is
// Wildcard or equal to the query's feature in that position.
func (k Key) Matches(q Key) bool {
	return featureMatches(k.Client, q.Client) &&
		featureMatches(k.User, q.User) &&
		featureMatches(k.Privilege, q.Privilege)
}

func featureMatches(stored, query string) bool {
	return stored == Wildcard || stored == query
}

// concreteCount returns how many of the three features are non-wildcard.
func (k Key) concreteCount() int {
	n := 0
	if k.Client != Wildcard {
		n++
	}
	if k.User != Wildcard {
		n++
	}
	if k.Privilege != Wildcard {
		n++
	}
	return n
}

// MoreSpecificThan implements the total order over matches within one
// bucket described in spec §4.4: more concrete (non-wildcard) features
// wins; ties break lexicographically client > user > privilege, with a
// concrete feature ranked below (i.e. more specific than) a wildcard one
// in that position.
func (k Key) MoreSpecificThan(other Key) bool {
	kc, oc := k.concreteCount(), other.concreteCount()
	if kc != oc {
		return kc > oc
	}
	if cmp := compareFeature(k.Client, other.Client); cmp != 0 {
		return cmp > 0
	}
	if cmp := compareFeature(k.User, other.User); cmp != 0 {
		return cmp > 0
	}
	return compareFeature(k.Privilege, other.Privilege) > 0
}

// compareFeature ranks a concrete feature above (more specific than) a
// wildcard feature in the same position, then falls back to plain string
// comparison between two concrete features or two wildcards.
func compareFeature(a, b string) int {
	aw, bw := a == Wildcard, b == Wildcard
	switch {
	case aw && !bw:
		return -1
	case !aw && bw:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Compare provides the deterministic total order over keys used for dump
// ordering: lexicographic by (Client, User, Privilege).
func (k Key) Compare(other Key) int {
	if c := strings.Compare(k.Client, other.Client); c != 0 {
		return c
	}
	if c := strings.Compare(k.User, other.User); c != 0 {
		return c
	}
	return strings.Compare(k.Privilege, other.Privilege)
}
