// Package policyerr defines the typed error kinds raised by the storage
// and persistence layers of policyd.
package policyerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds usable with errors.Is against any wrapped instance below.
var (
	ErrBucketNotExists      = errors.New("bucket not exists")
	ErrBucketAlreadyExists  = errors.New("bucket already exists")
	ErrDefaultBucketDeleted = errors.New("default bucket deletion")
	ErrBucketDeserialized   = errors.New("bucket deserialization failed")
	ErrBucketRecordCorrupt  = errors.New("bucket record corrupted")
)

// BucketNotExists is raised whenever an operation names a missing bucket.
type BucketNotExists struct {
	ID string
}

func (e *BucketNotExists) Error() string {
	return fmt.Sprintf("bucket %q does not exist", e.ID)
}

func (e *BucketNotExists) Is(target error) bool { return target == ErrBucketNotExists }

// NewBucketNotExists constructs a BucketNotExists for bucket id.
func NewBucketNotExists(id string) error {
	return &BucketNotExists{ID: id}
}

// BucketAlreadyExists is raised by createBucket on an existing id.
type BucketAlreadyExists struct {
	ID string
}

func (e *BucketAlreadyExists) Error() string {
	return fmt.Sprintf("bucket %q already exists", e.ID)
}

func (e *BucketAlreadyExists) Is(target error) bool { return target == ErrBucketAlreadyExists }

// NewBucketAlreadyExists constructs a BucketAlreadyExists for bucket id.
func NewBucketAlreadyExists(id string) error {
	return &BucketAlreadyExists{ID: id}
}

// DefaultBucketDeletion is raised by any attempt to delete the root bucket.
type DefaultBucketDeletion struct{}

func (e *DefaultBucketDeletion) Error() string {
	return "the default (root) bucket cannot be deleted"
}

func (e *DefaultBucketDeletion) Is(target error) bool { return target == ErrDefaultBucketDeleted }

// NewDefaultBucketDeletion constructs a DefaultBucketDeletion error.
func NewDefaultBucketDeletion() error {
	return &DefaultBucketDeletion{}
}

// BucketDeserialization is raised when the persistence layer fails to open
// a bucket file during load.
type BucketDeserialization struct {
	ID string
}

func (e *BucketDeserialization) Error() string {
	return fmt.Sprintf("failed to open bucket %q for deserialization", e.ID)
}

func (e *BucketDeserialization) Is(target error) bool { return target == ErrBucketDeserialized }

// NewBucketDeserialization constructs a BucketDeserialization for bucket id.
func NewBucketDeserialization(id string) error {
	return &BucketDeserialization{ID: id}
}

// BucketRecordCorrupted is raised on a parse failure in a persisted record.
type BucketRecordCorrupted struct {
	Line string
}

func (e *BucketRecordCorrupted) Error() string {
	return fmt.Sprintf("corrupted record: %q", e.Line)
}

func (e *BucketRecordCorrupted) Is(target error) bool { return target == ErrBucketRecordCorrupt }

// NewBucketRecordCorrupted constructs a BucketRecordCorrupted for the offending line.
func NewBucketRecordCorrupted(line string) error {
	return &BucketRecordCorrupted{Line: line}
}
