package storage

import (
	"sort"

	"github.com/coreauthz/policyd/agentproto"
	"github.com/coreauthz/policyd/policy"
	"github.com/coreauthz/policyd/policyerr"
	"github.com/coreauthz/policyd/plog"
)

// WarningReason classifies an integrity warning recorded during
// traversal. Neither warning raises an error — the resolver falls back to
// DENY and reports the warning to the caller (spec.md §7). The one
// exception is ResumeCheck's stale BUCKET reply, which records a
// dangling-link warning and restarts traversal from the root instead.
type WarningReason string

const (
	ReasonCycle         WarningReason = "cycle"
	ReasonDanglingLink  WarningReason = "dangling-link"
)

// Warning is one integrity event observed during a Check or ResumeCheck.
type Warning struct {
	Reason   WarningReason
	BucketID string
}

// Diagnostics accumulates warnings across one Check/ResumeCheck call. A
// nil *Diagnostics is valid everywhere below; warnings are simply
// dropped (but still logged) when the caller does not want them.
type Diagnostics struct {
	Warnings []Warning
}

func (d *Diagnostics) record(reason WarningReason, bucketID string) {
	plog.WarnLog.Printf("policy integrity warning: %s at bucket %q", reason, bucketID)
	if d == nil {
		return
	}
	d.Warnings = append(d.Warnings, Warning{Reason: reason, BucketID: bucketID})
}

// CheckOutcome is the result of Check/ResumeCheck: exactly one of Verdict
// or Deferred is set.
type CheckOutcome struct {
	Verdict  *policy.Result
	Deferred *agentproto.DeferredOutcome
}

// IsDeferred reports whether the outcome requires consulting an agent.
func (o CheckOutcome) IsDeferred() bool { return o.Deferred != nil }

func verdictOutcome(r policy.Result) CheckOutcome {
	return CheckOutcome{Verdict: &r}
}

// Storage is the public façade: the bucket-graph resolver plus the bulk
// mutation API. It holds a Backend by interface — it never owns buckets
// or policies, which belong exclusively to the Backend (spec.md §5).
type Storage struct {
	backend  Backend
	registry *agentproto.Registry
}

// NewStorage constructs the resolver/mutator façade over backend, using
// registry to decide whether an agent-plugin type is currently handled.
func NewStorage(backend Backend, registry *agentproto.Registry) *Storage {
	if registry == nil {
		registry = agentproto.NewRegistry()
	}
	return &Storage{backend: backend, registry: registry}
}

// Registry exposes the plugin registry so the daemon can register/
// unregister agent handlers as they connect and disconnect.
func (s *Storage) Registry() *agentproto.Registry { return s.registry }

// Backend exposes the concrete *MemBackend for callers that need more
// than the narrow Backend interface — currently only persist.Checkpoint,
// which must walk every bucket to dump it. Returns nil if Storage was
// constructed over a Backend that isn't a *MemBackend.
func (s *Storage) Backend() *MemBackend {
	mb, _ := s.backend.(*MemBackend)
	return mb
}

// minimalPolicy implements spec.md §4.4's single-bucket resolution: the
// most specific match in the bucket, or its default if nothing matches.
func (s *Storage) minimalPolicy(bucketID string, key policy.Key) (policy.Result, bool, error) {
	matches, err := s.backend.SearchBucket(bucketID, key)
	if err != nil {
		return policy.Result{}, false, err
	}
	if best, ok := matches.MostSpecific(); ok {
		return best.Result, true, nil
	}
	bk, ok := s.backend.Bucket(bucketID)
	if !ok {
		return policy.Result{}, false, policyerr.NewBucketNotExists(bucketID)
	}
	return bk.DefaultResult(), false, nil
}

// Check is the engine's entry point (spec.md §6): resolves key starting
// from the root bucket, walking the bucket graph until a verdict or an
// agent deferral is reached.
func (s *Storage) Check(key policy.Key, diag *Diagnostics) (CheckOutcome, error) {
	return s.checkPolicy(policy.RootBucketID, key, make(map[string]bool), diag)
}

// checkPolicy is the recursive graph traversal of spec.md §4.4.
func (s *Storage) checkPolicy(bucketID string, key policy.Key, visited map[string]bool, diag *Diagnostics) (CheckOutcome, error) {
	if visited[bucketID] {
		diag.record(ReasonCycle, bucketID)
		return verdictOutcome(policy.DenyResult()), nil
	}
	visited[bucketID] = true

	r, _, err := s.minimalPolicy(bucketID, key)
	if err != nil {
		return CheckOutcome{}, err
	}
	return s.resolveResult(r, key, visited, diag)
}

// resolveResult turns one policy result into a CheckOutcome: recursing
// through a BUCKET redirection, deferring to a registered agent plugin, or
// finalizing a verdict (spec.md §4.4 "Returning to caller", §6).
func (s *Storage) resolveResult(r policy.Result, key policy.Key, visited map[string]bool, diag *Diagnostics) (CheckOutcome, error) {
	switch {
	case r.Type == policy.Bucket:
		if !s.backend.HasBucket(r.Metadata) {
			diag.record(ReasonDanglingLink, r.Metadata)
			return verdictOutcome(policy.DenyResult()), nil
		}
		return s.checkPolicy(r.Metadata, key, visited, diag)

	case r.Type == policy.Allow || r.Type == policy.Deny:
		return verdictOutcome(r), nil

	case s.registry.IsRegistered(r.Type):
		return CheckOutcome{Deferred: &agentproto.DeferredOutcome{
			PluginType:  r.Type,
			Metadata:    r.Metadata,
			OriginalKey: key,
			Call:        agentproto.NewAgentActionRequest("", r.Type, r.Metadata, key),
		}}, nil

	default:
		// Non-predefined type with no registered plugin: DENY (spec.md §6).
		return verdictOutcome(policy.DenyResult()), nil
	}
}

// ResumeCheck re-evaluates after an agent plugin has replied (spec.md
// §4.6, §5). originalKey and result are supplied by the daemon's pending-
// check table; the engine itself keeps no state across the suspension.
//
// If result is again BUCKET-typed and its target still exists, traversal
// continues into that bucket with a fresh cycle-detection scope (this is
// a new traversal leg, not a continuation of the original call stack). If
// the target bucket no longer exists — the agent's reply raced a mutation
// that removed it — the reply is treated as stale and traversal restarts
// from the root with originalKey, per spec.md §5 ("an agent reply may
// become a no-op ... the resolver restarts traversal from the root").
// This is distinct from a BUCKET link going dangling during a normal
// Check, which resolves as DENY (spec.md §9 open question) rather than
// restarting — ResumeCheck's restart applies only to this specific race.
func (s *Storage) ResumeCheck(originalKey policy.Key, result policy.Result, diag *Diagnostics) (CheckOutcome, error) {
	if result.Type == policy.Bucket {
		if s.backend.HasBucket(result.Metadata) {
			return s.checkPolicy(result.Metadata, originalKey, make(map[string]bool), diag)
		}
		diag.record(ReasonDanglingLink, result.Metadata)
		return s.Check(originalKey, diag)
	}
	return s.resolveResult(result, originalKey, make(map[string]bool), diag)
}

// AddOrUpdateBucket creates bucketID if absent, otherwise updates its
// default result (spec.md §4.4).
func (s *Storage) AddOrUpdateBucket(id string, def policy.Result) error {
	if s.backend.HasBucket(id) {
		return s.backend.UpdateBucket(id, def)
	}
	return s.backend.CreateBucket(id, def)
}

// DeleteBucket delegates to the backend, which tears down reverse links
// (and the policies they name) before removing the bucket itself.
func (s *Storage) DeleteBucket(id string) error {
	return s.backend.DeleteBucket(id)
}

// InsertPolicies validates that every named bucket exists and that every
// BUCKET-typed policy's target bucket exists, then applies all-or-
// nothing (spec.md §4.4). Validation and application both iterate bucket
// ids in sorted order so "the first offender" is deterministic.
func (s *Storage) InsertPolicies(batch map[string][]policy.Policy) error {
	ids := sortedKeys(batch)
	for _, id := range ids {
		if !s.backend.HasBucket(id) {
			return policyerr.NewBucketNotExists(id)
		}
	}
	for _, id := range ids {
		for _, p := range batch[id] {
			if p.Result.Type == policy.Bucket && !s.backend.HasBucket(p.Result.Metadata) {
				return policyerr.NewBucketNotExists(p.Result.Metadata)
			}
		}
	}
	for _, id := range ids {
		for _, p := range batch[id] {
			if err := s.backend.InsertPolicy(id, p); err != nil {
				// Unreachable given the validation pass above, but surfaced
				// rather than ignored in case a Backend implementation has
				// additional invariants of its own.
				return err
			}
		}
	}
	return nil
}

// DeletePolicies removes the named keys from each bucket; missing keys
// are not errors, but a missing bucket id raises BucketNotExists and
// leaves the store unchanged (spec.md §4.4).
func (s *Storage) DeletePolicies(batch map[string][]policy.Key) error {
	ids := sortedKeys(batch)
	for _, id := range ids {
		if !s.backend.HasBucket(id) {
			return policyerr.NewBucketNotExists(id)
		}
	}
	for _, id := range ids {
		for _, key := range batch[id] {
			if err := s.backend.DeletePolicy(id, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListPolicies returns every policy in bucketID, optionally filtered to
// one exact key.
func (s *Storage) ListPolicies(bucketID string, filter *policy.Key) (policy.Collection, error) {
	return s.backend.ListPolicies(bucketID, filter)
}

func sortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
