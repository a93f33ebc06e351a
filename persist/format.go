// Package persist implements the text-format dump/load of a policy store
// (spec.md §4.5): one index stream listing buckets, one stream per bucket
// listing its policies, and an atomic directory-swap checkpoint.
package persist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coreauthz/policyd/policy"
	"github.com/coreauthz/policyd/policyerr"
)

const (
	fieldSeparator  = ";"
	recordSeparator = "\n"
)

// RootBucketFileName is the reserved on-disk name for the root bucket
// (id ""), since an empty filename is not addressable on a filesystem.
const RootBucketFileName = "_root"

// BucketFileName returns the on-disk file name for a bucket id.
func BucketFileName(bucketID string) string {
	if bucketID == policy.RootBucketID {
		return RootBucketFileName
	}
	return bucketID
}

// encodeIndexRecord renders one index line: <bucketId>;<type-hex>;<metadata>
func encodeIndexRecord(bucketID string, def policy.Result) string {
	return fmt.Sprintf("%s%s%x%s%s%s", bucketID, fieldSeparator, uint16(def.Type), fieldSeparator, def.Metadata, recordSeparator)
}

// decodeIndexRecord parses one index line (without its trailing
// separator) into a bucket id and default result.
func decodeIndexRecord(line string) (bucketID string, def policy.Result, err error) {
	parts := strings.SplitN(line, fieldSeparator, 3)
	if len(parts) < 2 {
		return "", policy.Result{}, policyerr.NewBucketRecordCorrupted(line)
	}
	typ, err := parseHexType(parts[1])
	if err != nil {
		return "", policy.Result{}, policyerr.NewBucketRecordCorrupted(line)
	}
	metadata := ""
	if len(parts) == 3 {
		metadata = parts[2]
	}
	return parts[0], policy.Result{Type: typ, Metadata: metadata}, nil
}

// encodePolicyRecord renders one bucket-file line:
// <client>;<user>;<privilege>;<type-hex>;<metadata>
func encodePolicyRecord(p policy.Policy) string {
	return fmt.Sprintf("%s%s%s%s%s%s%x%s%s%s",
		p.Key.Client, fieldSeparator,
		p.Key.User, fieldSeparator,
		p.Key.Privilege, fieldSeparator,
		uint16(p.Result.Type), fieldSeparator,
		p.Result.Metadata, recordSeparator)
}

// decodePolicyRecord parses one bucket-file line into a Policy.
func decodePolicyRecord(line string) (policy.Policy, error) {
	parts := strings.SplitN(line, fieldSeparator, 5)
	if len(parts) < 4 {
		return policy.Policy{}, policyerr.NewBucketRecordCorrupted(line)
	}
	typ, err := parseHexType(parts[3])
	if err != nil {
		return policy.Policy{}, policyerr.NewBucketRecordCorrupted(line)
	}
	metadata := ""
	if len(parts) == 5 {
		metadata = parts[4]
	}
	key := policy.NewKey(parts[0], parts[1], parts[2])
	return policy.NewPolicy(key, policy.Result{Type: typ, Metadata: metadata}), nil
}

// parseHexType parses a lowercase hex policy-type field. Unlike the
// reference implementation's std::stoi(..., 16), which silently stops at
// the first non-hex character, this requires the whole field to parse
// cleanly (SPEC_FULL.md §3) — a deliberate strengthening, not a silent
// behavior change.
func parseHexType(field string) (policy.Type, error) {
	v, err := strconv.ParseUint(field, 16, 16)
	if err != nil {
		return 0, err
	}
	return policy.Type(v), nil
}
