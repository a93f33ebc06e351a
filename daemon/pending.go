package daemon

import (
	"sync"
	"time"

	"github.com/coreauthz/policyd/policy"
)

// pendingCheck is one suspended Check awaiting an agent plugin's reply,
// keyed by request id in Daemon.pending.
type pendingCheck struct {
	key       policy.Key
	createdAt time.Time
}

// pendingTable is a mutex-guarded map, split out from Daemon itself so
// its locking is independent of the store's own mutex — a slow agent
// reply must never block an unrelated Check.
type pendingTable struct {
	mu   sync.Mutex
	byID map[string]pendingCheck
}

func newPendingTable() *pendingTable {
	return &pendingTable{byID: make(map[string]pendingCheck)}
}

func (t *pendingTable) put(requestID string, key policy.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[requestID] = pendingCheck{key: key, createdAt: time.Now()}
}

func (t *pendingTable) take(requestID string) (pendingCheck, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pc, ok := t.byID[requestID]
	if ok {
		delete(t.byID, requestID)
	}
	return pc, ok
}

// sweepExpired removes and returns pending checks older than maxAge, so
// the daemon can deny them rather than hold them forever when an agent
// never replies. Returns the abandoned request ids for logging.
func (t *pendingTable) sweepExpired(maxAge time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []string
	now := time.Now()
	for id, pc := range t.byID {
		if now.Sub(pc.createdAt) > maxAge {
			expired = append(expired, id)
			delete(t.byID, id)
		}
	}
	return expired
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
