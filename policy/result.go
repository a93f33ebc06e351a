package policy

import "fmt"

// Type is the 16-bit policy type. Values 0x0000-0xFFFE are verdicts or
// bucket redirection; 0xFFFF is ALLOW. Values in [0x0010, 0xFFFD] are
// reserved for agent-plugin types whose meaning is resolved outside the
// engine.
type Type uint16

const (
	// Deny is the DENY verdict.
	Deny Type = 0x0000
	// Bucket means: consult the bucket named in the result's metadata.
	Bucket Type = 0xFFFE
	// Allow is the ALLOW verdict.
	Allow Type = 0xFFFF

	// AgentPluginRangeStart is the first value reserved for agent plugins.
	AgentPluginRangeStart Type = 0x0010
	// AgentPluginRangeEnd is the last value reserved for agent plugins
	// (immediately below Bucket).
	AgentPluginRangeEnd Type = 0xFFFD
)

// IsAgentPlugin reports whether t falls in the agent-plugin reserved range.
func (t Type) IsAgentPlugin() bool {
	return t >= AgentPluginRangeStart && t <= AgentPluginRangeEnd
}

// String renders t for logging: the predefined names, or a lowercase hex
// literal for anything else (agent-plugin types included).
func (t Type) String() string {
	switch t {
	case Deny:
		return "DENY"
	case Bucket:
		return "BUCKET"
	case Allow:
		return "ALLOW"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// Result pairs a Type with opaque metadata: the target bucket id for
// Bucket, an opaque plugin token for agent types, empty for verdicts.
type Result struct {
	Type     Type
	Metadata string
}

// NewResult constructs a Result.
func NewResult(t Type, metadata string) Result {
	return Result{Type: t, Metadata: metadata}
}

// DenyResult is the canonical DENY result with empty metadata.
func DenyResult() Result { return Result{Type: Deny} }

// AllowResult is the canonical ALLOW result with empty metadata.
func AllowResult() Result { return Result{Type: Allow} }

// BucketResult builds a BUCKET-typed result pointing at targetBucket.
func BucketResult(targetBucket string) Result {
	return Result{Type: Bucket, Metadata: targetBucket}
}

// Equals reports whether two results carry the same type and metadata.
func (r Result) Equals(other Result) bool {
	return r.Type == other.Type && r.Metadata == other.Metadata
}

// Policy is a (key, result) pair living inside one bucket.
type Policy struct {
	Key    Key
	Result Result
}

// NewPolicy constructs a Policy.
func NewPolicy(key Key, result Result) Policy {
	return Policy{Key: key, Result: result}
}

// Collection is an eagerly-constructed list of policies, returned by the
// bucket's filtering primitives. The source's lazy iterator is dropped
// here: the store is small, and eager collections are clearer to consume
// and to make deterministic for dump ordering.
type Collection []Policy

// Len, Less and Swap implement sort.Interface by key order, used both by
// the serializer and by minimalPolicy's tie-break scan.
func (c Collection) Len() int      { return len(c) }
func (c Collection) Swap(i, j int) { c[i], c[j] = c[j], c[i] }
func (c Collection) Less(i, j int) bool {
	return c[i].Key.Compare(c[j].Key) < 0
}
