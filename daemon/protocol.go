// Package daemon is the thin event-loop shell around storage.Storage: it
// accepts already-framed request records, serializes access to the one
// in-memory store behind a mutex, parks deferred checks in a pending
// table, and periodically checkpoints to disk. Socket/IPC framing itself
// is out of scope (spec.md §1's scope note) — Dispatch takes and returns
// the Request/Response envelope directly; wiring that envelope onto an
// actual listener is cmd/policyd's job.
package daemon

import "github.com/coreauthz/policyd/policy"

// Method names accepted by Dispatch, mirroring the teacher's brain
// package JSON-RPC-flavored envelope (brain/protocol.go's
// Request{Method, Params}/Response{OK, Data, Error}) adapted to this
// daemon's own operation set.
const (
	MethodCheck           = "check"
	MethodAddBucket       = "add_bucket"
	MethodDeleteBucket    = "delete_bucket"
	MethodInsertPolicies  = "insert_policies"
	MethodDeletePolicies  = "delete_policies"
	MethodListPolicies    = "list_policies"
	MethodRegisterAgent   = "register_agent"
	MethodUnregisterAgent = "unregister_agent"
	MethodAgentReply      = "agent_reply"
)

// Request is the envelope a transport hands to Dispatch.
type Request struct {
	Method string
	Params map[string]any
}

// Response is what Dispatch returns for a transport to frame and send.
type Response struct {
	OK    bool
	Data  map[string]any
	Error string
}

func errResponse(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

func okResponse(data map[string]any) Response {
	return Response{OK: true, Data: data}
}

// keyFromParams extracts a policy.Key from a Request's Params, the shape
// every client-facing method that names a policy key shares.
func keyFromParams(params map[string]any) policy.Key {
	return policy.NewKey(
		stringParam(params, "client"),
		stringParam(params, "user"),
		stringParam(params, "privilege"),
	)
}

func stringParam(params map[string]any, name string) string {
	if v, ok := params[name].(string); ok {
		return v
	}
	return ""
}
