package daemon

import (
	"testing"

	"github.com/coreauthz/policyd/agentproto"
	"github.com/coreauthz/policyd/config"
	"github.com/coreauthz/policyd/plog"
	"github.com/coreauthz/policyd/policy"
	"github.com/coreauthz/policyd/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	plog.Initialize(false)
	defer plog.Close()
	m.Run()
}

func newTestDaemon() *Daemon {
	backend := storage.NewMemBackend(policy.DenyResult())
	st := storage.NewStorage(backend, agentproto.NewRegistry())
	return New(st, &config.Config{})
}

func TestDispatchCheckDefaultDeny(t *testing.T) {
	d := newTestDaemon()
	resp := d.Dispatch(Request{Method: MethodCheck, Params: map[string]any{
		"client": "app", "user": "alice", "privilege": "camera",
	}})
	require.True(t, resp.OK)
	assert.Equal(t, "decided", resp.Data["status"])
	assert.Equal(t, "DENY", resp.Data["result"])
}

func TestDispatchInsertThenCheckAllows(t *testing.T) {
	d := newTestDaemon()

	insert := d.Dispatch(Request{Method: MethodInsertPolicies, Params: map[string]any{
		"bucket_id": "", "client": "app", "user": "alice", "privilege": "camera",
		"type": float64(policy.Allow),
	}})
	require.True(t, insert.OK)

	resp := d.Dispatch(Request{Method: MethodCheck, Params: map[string]any{
		"client": "app", "user": "alice", "privilege": "camera",
	}})
	require.True(t, resp.OK)
	assert.Equal(t, "ALLOW", resp.Data["result"])
}

func TestDispatchDefersToRegisteredAgent(t *testing.T) {
	d := newTestDaemon()
	const pluginType = policy.Type(0x0020)

	reg := d.Dispatch(Request{Method: MethodRegisterAgent, Params: map[string]any{"type": float64(pluginType)}})
	require.True(t, reg.OK)

	insert := d.Dispatch(Request{Method: MethodInsertPolicies, Params: map[string]any{
		"bucket_id": "", "client": "app", "user": "alice", "privilege": "mic",
		"type": float64(pluginType), "metadata": "consent-prompt",
	}})
	require.True(t, insert.OK)

	resp := d.Dispatch(Request{Method: MethodCheck, Params: map[string]any{
		"client": "app", "user": "alice", "privilege": "mic",
	}})
	require.True(t, resp.OK)
	assert.Equal(t, "deferred", resp.Data["status"])
	requestID, _ := resp.Data["request_id"].(string)
	require.NotEmpty(t, requestID)
	assert.Equal(t, 1, d.PendingCount())

	reply := d.Dispatch(Request{Method: MethodAgentReply, Params: map[string]any{
		"request_id": requestID, "text": "ALLOW",
	}})
	require.True(t, reply.OK)
	assert.Equal(t, "ALLOW", reply.Data["result"])
	assert.Equal(t, 0, d.PendingCount())
}

func TestDispatchAgentReplyUnknownRequestID(t *testing.T) {
	d := newTestDaemon()
	resp := d.Dispatch(Request{Method: MethodAgentReply, Params: map[string]any{
		"request_id": "nonexistent", "text": "ALLOW",
	}})
	assert.False(t, resp.OK)
}

func TestDispatchDeleteBucketProtectsRoot(t *testing.T) {
	d := newTestDaemon()
	resp := d.Dispatch(Request{Method: MethodDeleteBucket, Params: map[string]any{"bucket_id": ""}})
	assert.False(t, resp.OK)
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newTestDaemon()
	resp := d.Dispatch(Request{Method: "bogus"})
	assert.False(t, resp.OK)
}
