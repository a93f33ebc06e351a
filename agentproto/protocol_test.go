package agentproto

import (
	"testing"

	"github.com/coreauthz/policyd/policy"
	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestDecodeResultAllow(t *testing.T) {
	resp := &AgentActionResponse{Result: gomcp.NewToolResultText("ALLOW")}
	r := DecodeResult(resp)
	assert.Equal(t, policy.Allow, r.Type)
}

func TestDecodeResultDeny(t *testing.T) {
	resp := &AgentActionResponse{Result: gomcp.NewToolResultText("DENY")}
	r := DecodeResult(resp)
	assert.Equal(t, policy.Deny, r.Type)
}

func TestDecodeResultBucketRedirect(t *testing.T) {
	resp := &AgentActionResponse{Result: gomcp.NewToolResultText("BUCKET:child")}
	r := DecodeResult(resp)
	assert.Equal(t, policy.Bucket, r.Type)
	assert.Equal(t, "child", r.Metadata)
}

func TestDecodeResultErrorFlagDenies(t *testing.T) {
	resp := &AgentActionResponse{Result: gomcp.NewToolResultError("agent crashed")}
	r := DecodeResult(resp)
	assert.Equal(t, policy.Deny, r.Type)
}

func TestDecodeResultNilResponseDenies(t *testing.T) {
	assert.Equal(t, policy.Deny, DecodeResult(nil).Type)
	assert.Equal(t, policy.Deny, DecodeResult(&AgentActionResponse{}).Type)
}

func TestDecodeResultUnrecognizedTextDenies(t *testing.T) {
	resp := &AgentActionResponse{Result: gomcp.NewToolResultText("garbage")}
	r := DecodeResult(resp)
	assert.Equal(t, policy.Deny, r.Type)
}

func TestNewAgentActionRequestShape(t *testing.T) {
	key := policy.NewKey("app", "alice", "camera")
	req := NewAgentActionRequest("req-1", policy.Type(0x0020), "meta", key)
	assert.Equal(t, policy.Type(0x0020).String(), req.Params.Name)
	assert.Equal(t, "app", req.Params.Arguments["client"])
	assert.Equal(t, "meta", req.Params.Arguments["metadata"])
}

func TestRegistryRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	const typ = policy.Type(0x0020)

	assert.False(t, r.IsRegistered(typ))

	out := r.Register(typ)
	assert.Equal(t, RegisterOK, out.Outcome)
	assert.True(t, r.IsRegistered(typ))

	dup := r.Register(typ)
	assert.Equal(t, RegisterDuplicate, dup.Outcome)

	r.Unregister(typ)
	assert.False(t, r.IsRegistered(typ))
}
