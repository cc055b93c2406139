// This source code is governed by the MIT license, which can be found in the LICENSE file.

package client

import (
	"encoding/json"
	"sync"
	"time"
)

// An outcome is the terminal result of a pending command: a raw result
// payload or an error, never both.
type outcome struct {
	result json.RawMessage
	err    error
}

// A pendingRequest is an outstanding command awaiting a correlated response.
type pendingRequest struct {
	id           string
	done         chan outcome // Receives exactly one outcome
	timer        *time.Timer
	gen          uint64 // Bumped on every re-arm; stale timer firings check it
	lastActivity time.Time
}

// pendingTable tracks pending requests by command id.
// Entries are removed exactly once, by whichever of resolve, reject, the
// expiry timer, or rejectAll gets there first; late arrivals for a removed
// id have no effect.
type pendingTable struct {
	mtx  sync.Mutex // Protects reqs and each entry's timer
	reqs map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{reqs: make(map[string]*pendingRequest)}
}

// add registers a pending request that will be rejected with ErrTimeout if
// nothing resolves, rejects, or extends it within timeout.
func (t *pendingTable) add(id string, timeout time.Duration) *pendingRequest {
	req := &pendingRequest{
		id:           id,
		done:         make(chan outcome, 1),
		lastActivity: time.Now(),
	}

	t.mtx.Lock()
	t.reqs[id] = req
	req.timer = time.AfterFunc(timeout, func() {
		t.expire(id, 0)
	})
	t.mtx.Unlock()

	return req
}

// expire rejects the entry for id with ErrTimeout, unless the entry has been
// removed or its timer re-armed since this firing was scheduled.
func (t *pendingTable) expire(id string, gen uint64) {
	t.mtx.Lock()
	req, ok := t.reqs[id]
	if !ok || req.gen != gen {
		t.mtx.Unlock()
		return
	}
	delete(t.reqs, id)
	t.mtx.Unlock()

	req.done <- outcome{err: ErrTimeout}
}

// take removes and returns the entry for id, cancelling its timer.
func (t *pendingTable) take(id string) (*pendingRequest, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	req, ok := t.reqs[id]
	if !ok {
		return nil, false
	}
	delete(t.reqs, id)
	req.timer.Stop()
	return req, true
}

// resolve completes the pending request for id with a result.
func (t *pendingTable) resolve(id string, result json.RawMessage) bool {
	req, ok := t.take(id)
	if !ok {
		return false
	}
	req.done <- outcome{result: result}
	return true
}

// reject completes the pending request for id with an error.
func (t *pendingTable) reject(id string, err error) bool {
	req, ok := t.take(id)
	if !ok {
		return false
	}
	req.done <- outcome{err: err}
	return true
}

// extend re-arms the expiry timer for id with a new window and refreshes the
// entry's last-activity timestamp. The previous timer is cancelled before
// the replacement is armed, so an id never has two timers racing.
func (t *pendingTable) extend(id string, window time.Duration) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	req, ok := t.reqs[id]
	if !ok {
		return false
	}
	req.timer.Stop()
	req.gen++
	gen := req.gen
	req.timer = time.AfterFunc(window, func() {
		t.expire(id, gen)
	})
	req.lastActivity = time.Now()
	return true
}

// rejectAll completes every pending request with err and empties the table.
func (t *pendingTable) rejectAll(err error) {
	t.mtx.Lock()
	reqs := t.reqs
	t.reqs = make(map[string]*pendingRequest)
	t.mtx.Unlock()

	for _, req := range reqs {
		req.timer.Stop()
		req.done <- outcome{err: err}
	}
}

// size returns the number of pending requests.
func (t *pendingTable) size() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return len(t.reqs)
}
