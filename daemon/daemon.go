package daemon

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	gomcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/coreauthz/policyd/agentproto"
	"github.com/coreauthz/policyd/config"
	"github.com/coreauthz/policyd/persist"
	"github.com/coreauthz/policyd/plog"
	"github.com/coreauthz/policyd/policy"
	"github.com/coreauthz/policyd/storage"
)

// Daemon is the long-lived process wrapping one *storage.Storage:
// serializes every Dispatch call behind mu, parks deferred checks in a
// pendingTable, and periodically checkpoints to cfg.StorageDir.
type Daemon struct {
	mu      sync.Mutex
	store   *storage.Storage
	pending *pendingTable
	cfg     *config.Config
}

// New constructs a Daemon over an already-loaded store.
func New(store *storage.Storage, cfg *config.Config) *Daemon {
	return &Daemon{
		store:   store,
		pending: newPendingTable(),
		cfg:     cfg,
	}
}

// Open loads the on-disk store at cfg.StorageDir (an empty root-only
// store if none exists yet) and constructs a Daemon over it.
func Open(cfg *config.Config) (*Daemon, error) {
	backend, err := persist.Load(persist.NewDirStreamFactory(cfg.StorageDir))
	if errors.Is(err, fs.ErrNotExist) {
		// No index file yet: start from a root-only store.
		backend, err = storage.NewMemBackend(policy.DenyResult()), nil
	}
	if err != nil {
		return nil, err
	}
	return New(storage.NewStorage(backend, agentproto.NewRegistry()), cfg), nil
}

// Dispatch handles one Request under the store lock and returns the
// Response a transport should send back to its caller.
func (d *Daemon) Dispatch(req Request) Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch req.Method {
	case MethodCheck:
		return d.handleCheck(req.Params)
	case MethodAgentReply:
		return d.handleAgentReply(req.Params)
	case MethodAddBucket:
		return d.handleAddBucket(req.Params)
	case MethodDeleteBucket:
		return d.handleDeleteBucket(req.Params)
	case MethodInsertPolicies:
		return d.handleInsertPolicies(req.Params)
	case MethodDeletePolicies:
		return d.handleDeletePolicies(req.Params)
	case MethodListPolicies:
		return d.handleListPolicies(req.Params)
	case MethodRegisterAgent:
		return d.handleRegisterAgent(req.Params)
	case MethodUnregisterAgent:
		return d.handleUnregisterAgent(req.Params)
	default:
		return Response{OK: false, Error: "unknown method: " + req.Method}
	}
}

func (d *Daemon) handleCheck(params map[string]any) Response {
	key := keyFromParams(params)
	diag := &storage.Diagnostics{}
	outcome, err := d.store.Check(key, diag)
	if err != nil {
		return errResponse(err)
	}
	return d.finishOutcome(outcome, diag)
}

func (d *Daemon) handleAgentReply(params map[string]any) Response {
	requestID := stringParam(params, "request_id")
	pc, ok := d.pending.take(requestID)
	if !ok {
		return Response{OK: false, Error: "no pending check for request id " + requestID}
	}

	resp := &agentproto.AgentActionResponse{
		RequestID: requestID,
		Result:    toolResultFromParams(params),
	}
	result := agentproto.DecodeResult(resp)

	diag := &storage.Diagnostics{}
	outcome, err := d.store.ResumeCheck(pc.key, result, diag)
	if err != nil {
		return errResponse(err)
	}
	return d.finishOutcome(outcome, diag)
}

// toolResultFromParams builds the CallToolResult DecodeResult expects
// out of a reply's "text" param, so transports need only pass through
// the plugin's literal answer ("ALLOW"/"DENY"/"BUCKET:<id>") without
// knowing anything about the MCP content-block shape.
func toolResultFromParams(params map[string]any) *gomcp.CallToolResult {
	text := stringParam(params, "text")
	if isErr, _ := params["error"].(bool); isErr {
		return gomcp.NewToolResultError(text)
	}
	return gomcp.NewToolResultText(text)
}

// finishOutcome renders a CheckOutcome as a Response, parking the
// request in pending when it's deferred and reporting any integrity
// warnings collected along the way.
func (d *Daemon) finishOutcome(outcome storage.CheckOutcome, diag *storage.Diagnostics) Response {
	data := map[string]any{}
	if len(diag.Warnings) > 0 {
		warnings := make([]string, len(diag.Warnings))
		for i, w := range diag.Warnings {
			warnings[i] = string(w.Reason) + ":" + w.BucketID
		}
		data["warnings"] = warnings
	}

	if outcome.IsDeferred() {
		requestID := uuid.NewString()
		d.pending.put(requestID, outcome.Deferred.OriginalKey)
		data["status"] = "deferred"
		data["request_id"] = requestID
		data["plugin_type"] = outcome.Deferred.PluginType.String()
		data["metadata"] = outcome.Deferred.Metadata
		return okResponse(data)
	}

	data["status"] = "decided"
	data["result"] = outcome.Verdict.Type.String()
	return okResponse(data)
}

func (d *Daemon) handleAddBucket(params map[string]any) Response {
	id := stringParam(params, "bucket_id")
	def := resultFromParams(params)
	if err := d.store.AddOrUpdateBucket(id, def); err != nil {
		return errResponse(err)
	}
	return okResponse(nil)
}

func (d *Daemon) handleDeleteBucket(params map[string]any) Response {
	id := stringParam(params, "bucket_id")
	if err := d.store.DeleteBucket(id); err != nil {
		return errResponse(err)
	}
	return okResponse(nil)
}

func (d *Daemon) handleInsertPolicies(params map[string]any) Response {
	id := stringParam(params, "bucket_id")
	p := policy.NewPolicy(keyFromParams(params), resultFromParams(params))
	if err := d.store.InsertPolicies(map[string][]policy.Policy{id: {p}}); err != nil {
		return errResponse(err)
	}
	return okResponse(nil)
}

func (d *Daemon) handleDeletePolicies(params map[string]any) Response {
	id := stringParam(params, "bucket_id")
	key := keyFromParams(params)
	if err := d.store.DeletePolicies(map[string][]policy.Key{id: {key}}); err != nil {
		return errResponse(err)
	}
	return okResponse(nil)
}

func (d *Daemon) handleListPolicies(params map[string]any) Response {
	id := stringParam(params, "bucket_id")
	policies, err := d.store.ListPolicies(id, nil)
	if err != nil {
		return errResponse(err)
	}
	out := make([]map[string]any, len(policies))
	for i, p := range policies {
		out[i] = map[string]any{
			"client": p.Key.Client, "user": p.Key.User, "privilege": p.Key.Privilege,
			"type": p.Result.Type.String(), "metadata": p.Result.Metadata,
		}
	}
	return okResponse(map[string]any{"policies": out})
}

func (d *Daemon) handleRegisterAgent(params map[string]any) Response {
	typ := typeFromParams(params)
	outcome := d.store.Registry().Register(typ)
	if outcome.Outcome == agentproto.RegisterDuplicate {
		return Response{OK: false, Error: "agent plugin type already registered"}
	}
	return okResponse(nil)
}

func (d *Daemon) handleUnregisterAgent(params map[string]any) Response {
	d.store.Registry().Unregister(typeFromParams(params))
	return okResponse(nil)
}

func resultFromParams(params map[string]any) policy.Result {
	typ := typeFromParams(params)
	metadata := stringParam(params, "metadata")
	return policy.Result{Type: typ, Metadata: metadata}
}

func typeFromParams(params map[string]any) policy.Type {
	switch v := params["type"].(type) {
	case float64:
		return policy.Type(uint16(v))
	case int:
		return policy.Type(uint16(v))
	}
	return policy.Deny
}

// RunCheckpointLoop periodically checkpoints the store to cfg.StorageDir
// until ctx is canceled. A CheckpointIntervalMS of zero disables it — the
// daemon then relies solely on checkpoint-on-shutdown (called by the
// owner of ctx after canceling it).
func (d *Daemon) RunCheckpointLoop(ctx context.Context) {
	if d.cfg.CheckpointIntervalMS <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(d.cfg.CheckpointIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Checkpoint(); err != nil {
				plog.ErrorLog.Printf("periodic checkpoint failed: %v", err)
			}
		}
	}
}

// Checkpoint writes the current store state to cfg.StorageDir atomically.
func (d *Daemon) Checkpoint() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return persist.Checkpoint(d.backend(), d.cfg.StorageDir)
}

// backend returns the concrete *storage.MemBackend persist.Checkpoint
// needs, obtained through Storage.Backend.
func (d *Daemon) backend() *storage.MemBackend {
	return d.store.Backend()
}

// PendingCount reports how many checks are currently awaiting an agent
// reply — exposed for tests.
func (d *Daemon) PendingCount() int {
	return d.pending.len()
}

// SweepExpired drops pending checks older than maxAge, logging each one
// abandoned this way. A later agent reply for a dropped request id is
// rejected as unknown.
func (d *Daemon) SweepExpired(maxAge time.Duration) {
	for _, id := range d.pending.sweepExpired(maxAge) {
		plog.WarnLog.Printf("abandoned pending check %s after %s with no agent reply", id, maxAge)
	}
}
