package persist

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/coreauthz/policyd/policy"
	"github.com/coreauthz/policyd/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStreamFactory is an in-memory StreamFactory, standing in for the
// filesystem so Dump/Load round-trip tests don't need a temp directory.
// Dump writes buckets concurrently (errgroup), so the bucket map needs
// its own lock even though nothing else about this fake is thread-safe.
type memStreamFactory struct {
	index   bytes.Buffer
	mu      sync.Mutex
	buckets map[string]*bytes.Buffer
}

func newMemStreamFactory() *memStreamFactory {
	return &memStreamFactory{buckets: make(map[string]*bytes.Buffer)}
}

type nopCloser struct{ io.ReadWriter }

func (nopCloser) Close() error { return nil }

func (f *memStreamFactory) IndexWriter() (io.WriteCloser, error) {
	f.index.Reset()
	return nopCloser{&f.index}, nil
}

func (f *memStreamFactory) IndexReader() (io.ReadCloser, error) {
	return nopCloser{bytes.NewReader(f.index.Bytes())}, nil
}

func (f *memStreamFactory) BucketWriter(bucketID string) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	f.mu.Lock()
	f.buckets[bucketID] = buf
	f.mu.Unlock()
	return nopCloser{buf}, nil
}

func (f *memStreamFactory) BucketReader(bucketID string) (io.ReadCloser, error) {
	f.mu.Lock()
	buf, ok := f.buckets[bucketID]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return nopCloser{bytes.NewReader(buf.Bytes())}, nil
}

func TestDumpRootOnlyMatchesSentinelScenario(t *testing.T) {
	backend := storage.NewMemBackend(policy.AllowResult())
	sf := newMemStreamFactory()

	require.NoError(t, Dump(backend, sf))
	assert.Equal(t, ";ffff;\n\n", sf.index.String())
}

func TestDumpLoadRoundTrip(t *testing.T) {
	backend := storage.NewMemBackend(policy.DenyResult())
	require.NoError(t, backend.CreateBucket("child", policy.AllowResult()))
	key := policy.NewKey("app", "alice", "camera")
	require.NoError(t, backend.InsertPolicy(policy.RootBucketID, policy.NewPolicy(key, policy.BucketResult("child"))))
	require.NoError(t, backend.InsertPolicy("child", policy.NewPolicy(key, policy.AllowResult())))

	sf := newMemStreamFactory()
	require.NoError(t, Dump(backend, sf))

	loaded, err := Load(sf)
	require.NoError(t, err)

	assert.True(t, loaded.HasBucket("child"))
	rootPolicies, err := loaded.ListPolicies(policy.RootBucketID, nil)
	require.NoError(t, err)
	require.Len(t, rootPolicies, 1)
	assert.Equal(t, policy.Bucket, rootPolicies[0].Result.Type)

	childBucket, ok := loaded.Bucket("child")
	require.True(t, ok)
	assert.Equal(t, policy.Allow, childBucket.DefaultResult().Type)
	assert.Equal(t, 1, loaded.ReverseLinkCount("child"), "reverse links must be rebuilt from loaded policies")
}

func TestLoadEmptyStoreYieldsDefaultRoot(t *testing.T) {
	backend := storage.NewMemBackend(policy.DenyResult())
	sf := newMemStreamFactory()
	require.NoError(t, Dump(backend, sf))

	loaded, err := Load(sf)
	require.NoError(t, err)
	root, ok := loaded.Bucket(policy.RootBucketID)
	require.True(t, ok)
	assert.Equal(t, policy.Deny, root.DefaultResult().Type)
}

func TestLoadMissingBucketFileFails(t *testing.T) {
	sf := newMemStreamFactory()
	sf.index.WriteString(encodeIndexRecord(policy.RootBucketID, policy.DenyResult()))
	sf.index.WriteString(encodeIndexRecord("child", policy.AllowResult()))
	sf.index.WriteString(recordSeparator)
	// Root's file is present but "child"'s is not — the opener's (nil, nil)
	// "no stream" contract, which must be fatal rather than an empty bucket.
	sf.buckets[policy.RootBucketID] = &bytes.Buffer{}

	_, err := Load(sf)
	assert.Error(t, err)
}

func TestLoadCorruptPolicyRecordFails(t *testing.T) {
	sf := newMemStreamFactory()
	sf.index.WriteString(encodeIndexRecord(policy.RootBucketID, policy.DenyResult()))
	sf.index.WriteString(recordSeparator)

	bucketBuf := &bytes.Buffer{}
	bucketBuf.WriteString("not;enough\n")
	sf.buckets[policy.RootBucketID] = bucketBuf

	_, err := Load(sf)
	assert.Error(t, err)
}
