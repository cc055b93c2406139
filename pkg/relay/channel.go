// This source code is governed by the MIT license, which can be found in the LICENSE file.

package relay

import "sync"

// A channel groups connections that receive each other's broadcast traffic.
type channel struct {
	name       string
	membersMTX sync.RWMutex // Protects members
	members    map[uint64]*Conn
}

// newChannel makes a new channel.
func newChannel(name string) *channel {
	return &channel{
		name: name,
		// A channel is only ever made because a connection wants to join it.
		members: make(map[uint64]*Conn, 1),
	}
}

// add registers a connection as a member of this channel.
func (ch *channel) add(c *Conn) {
	ch.membersMTX.Lock()
	defer ch.membersMTX.Unlock()
	ch.members[c.id] = c
}

// remove takes a connection out of this channel.
// If there are still members afterward, more will be true.
func (ch *channel) remove(id uint64) (member bool, more bool) {
	ch.membersMTX.Lock()
	defer ch.membersMTX.Unlock()
	if _, ok := ch.members[id]; ok {
		member = true
		delete(ch.members, id)
	}
	return member, len(ch.members) != 0
}

// has reports whether the connection with the given id is a member.
func (ch *channel) has(id uint64) bool {
	ch.membersMTX.RLock()
	defer ch.membersMTX.RUnlock()
	_, ok := ch.members[id]
	return ok
}

// memberCount returns the number of members in this channel.
func (ch *channel) memberCount() int {
	ch.membersMTX.RLock()
	defer ch.membersMTX.RUnlock()
	return len(ch.members)
}

// broadcast enqueues already-serialized data to every member of this channel,
// skipping members whose ID is in excludeIDs. A member whose send queue is
// unavailable counts as failed; a failure to reach one member never prevents
// delivery to the rest.
func (ch *channel) broadcast(data []byte, excludeIDs ...uint64) (sent, failed int) {
	excluded := make(map[uint64]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	ch.membersMTX.RLock()
	defer ch.membersMTX.RUnlock()

	for id, member := range ch.members {
		if _, skip := excluded[id]; skip {
			continue
		}
		if member.enqueue(data) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}
