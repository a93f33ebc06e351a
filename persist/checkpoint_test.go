package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coreauthz/policyd/policy"
	"github.com/coreauthz/policyd/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointCreatesLoadableStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	backend := storage.NewMemBackend(policy.DenyResult())
	require.NoError(t, backend.CreateBucket("child", policy.AllowResult()))
	key := policy.NewKey("app", "alice", "camera")
	require.NoError(t, backend.InsertPolicy(policy.RootBucketID, policy.NewPolicy(key, policy.BucketResult("child"))))

	require.NoError(t, Checkpoint(backend, dir))

	loaded, err := Load(NewDirStreamFactory(dir))
	require.NoError(t, err)
	assert.True(t, loaded.HasBucket("child"))

	_, err = os.Stat(dir + ".checkpoint.tmp")
	assert.True(t, os.IsNotExist(err), "shadow dir must not survive a successful checkpoint")
	_, err = os.Stat(dir + ".checkpoint.bak")
	assert.True(t, os.IsNotExist(err), "backup dir must not survive a successful checkpoint")
}

func TestCheckpointTwiceReplacesPriorState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	first := storage.NewMemBackend(policy.DenyResult())
	require.NoError(t, first.CreateBucket("old", policy.DenyResult()))
	require.NoError(t, Checkpoint(first, dir))

	second := storage.NewMemBackend(policy.AllowResult())
	require.NoError(t, Checkpoint(second, dir))

	loaded, err := Load(NewDirStreamFactory(dir))
	require.NoError(t, err)
	assert.False(t, loaded.HasBucket("old"), "second checkpoint must fully replace the first, not merge")
	root, ok := loaded.Bucket(policy.RootBucketID)
	require.True(t, ok)
	assert.Equal(t, policy.Allow, root.DefaultResult().Type)
}

func TestCheckpointOnFreshDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist-yet")
	backend := storage.NewMemBackend(policy.DenyResult())
	require.NoError(t, Checkpoint(backend, dir))

	loaded, err := Load(NewDirStreamFactory(dir))
	require.NoError(t, err)
	root, ok := loaded.Bucket(policy.RootBucketID)
	require.True(t, ok)
	assert.Equal(t, policy.Deny, root.DefaultResult().Type)
}
