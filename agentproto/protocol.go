// Package agentproto is the narrow surface the resolver uses to suspend a
// lookup pending an external agent's reply, and to resume it when a reply
// arrives (spec.md §4.6, §6). It does not implement socket framing or the
// pending-check table matching replies to requests — those belong to the
// daemon event loop (spec.md §1, explicitly out of scope here).
package agentproto

import (
	"github.com/coreauthz/policyd/policy"
	gomcp "github.com/mark3labs/mcp-go/mcp"
)

// DeferredOutcome is returned synchronously by a Check that needs an
// external agent plugin before producing a verdict. The caller (daemon
// event loop) is responsible for parking the client request and
// dispatching Call to the plugin registered for PluginType.
type DeferredOutcome struct {
	PluginType   policy.Type
	Metadata     string
	OriginalKey  policy.Key
	AgentContext any

	// Call is the outbound request, modeled as an MCP tool invocation: the
	// plugin type is addressed like a named tool and the opaque metadata
	// becomes its arguments. This reuses mcp-go's CallToolRequest shape —
	// the one pack dependency whose "named capability, structured
	// arguments" shape matches an opaque external evaluator — without
	// pulling in its stdio transport or server (that belongs to the
	// socket/IPC layer, out of scope per spec.md §1).
	Call gomcp.CallToolRequest
}

// NewAgentActionRequest builds the CallToolRequest envelope for a
// deferred outcome: the plugin type rendered as a tool name, and the
// policy metadata plus original query packed as arguments.
func NewAgentActionRequest(requestID string, pluginType policy.Type, metadata string, key policy.Key) gomcp.CallToolRequest {
	req := gomcp.CallToolRequest{}
	req.Params.Name = pluginType.String()
	req.Params.Arguments = map[string]any{
		"request_id": requestID,
		"metadata":   metadata,
		"client":     key.Client,
		"user":       key.User,
		"privilege":  key.Privilege,
	}
	return req
}

// AgentActionResponse is the reply the daemon hands back to
// storage.Storage.ResumeCheck once the agent plugin has answered. Result
// is modeled as an MCP CallToolResult for the same reason as the request.
type AgentActionResponse struct {
	RequestID string
	Result    *gomcp.CallToolResult
}

// DecodeResult extracts the verdict the plugin produced out of an MCP-
// shaped tool result: a successful, non-error result's text content names
// either a predefined verdict ("ALLOW"/"DENY") or, for agent chaining, a
// bucket redirection encoded as "BUCKET:<id>". Any other shape — an error
// result, empty content, or unrecognized text — decodes to DENY, matching
// spec.md §6's "agent plugin not registered" fallback applied uniformly to
// malformed replies.
func DecodeResult(resp *AgentActionResponse) policy.Result {
	if resp == nil || resp.Result == nil || resp.Result.IsError {
		return policy.DenyResult()
	}
	for _, c := range resp.Result.Content {
		text, ok := c.(gomcp.TextContent)
		if !ok {
			continue
		}
		switch {
		case text.Text == "ALLOW":
			return policy.AllowResult()
		case text.Text == "DENY":
			return policy.DenyResult()
		case len(text.Text) > len("BUCKET:") && text.Text[:len("BUCKET:")] == "BUCKET:":
			return policy.BucketResult(text.Text[len("BUCKET:"):])
		}
	}
	return policy.DenyResult()
}

// RegisterRequest/Response model the out-of-band plugin registration
// handshake (spec.md §6); the engine itself never originates these — a
// Registry (below) is consulted, populated by whatever component in the
// daemon owns registration.
type RegisterRequest struct {
	PluginType policy.Type
}

type RegisterOutcome int

const (
	RegisterOK RegisterOutcome = iota
	RegisterDuplicate
)

type RegisterResponse struct {
	Outcome RegisterOutcome
}

// Registry tracks which agent-plugin types currently have a registered
// handler. The resolver consults it via IsRegistered to decide between
// deferring and falling back to DENY (spec.md §6).
type Registry struct {
	registered map[policy.Type]struct{}
}

// NewRegistry constructs an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{registered: make(map[policy.Type]struct{})}
}

// Register records pluginType as having a handler. Returns
// RegisterDuplicate if already registered.
func (r *Registry) Register(pluginType policy.Type) RegisterResponse {
	if _, ok := r.registered[pluginType]; ok {
		return RegisterResponse{Outcome: RegisterDuplicate}
	}
	r.registered[pluginType] = struct{}{}
	return RegisterResponse{Outcome: RegisterOK}
}

// Unregister removes pluginType, e.g. when its agent process disconnects.
func (r *Registry) Unregister(pluginType policy.Type) {
	delete(r.registered, pluginType)
}

// IsRegistered reports whether pluginType currently has a handler.
func (r *Registry) IsRegistered(pluginType policy.Type) bool {
	_, ok := r.registered[pluginType]
	return ok
}
