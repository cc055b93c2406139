// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package relay implements the websocket relay that bridges command clients
// to plugin participants over named channels.
package relay

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/model"
)

// Relay terminates websocket connections, groups them into channels, and
// broadcasts messages between channel members. It also serves read-only
// introspection endpoints; see ServeHTTP.
type Relay struct {
	log       *logrus.Logger
	startedAt time.Time

	// PingInterval specifies how often idle connections are pinged.
	// If 0, no pings are sent and read deadlines are not enforced.
	PingInterval time.Duration

	// StatsPassword optionally protects the introspection endpoints.
	// When empty, they are open.
	StatsPassword string

	// CurrentChannel optionally reports the channel joined by the local
	// command client, for inclusion in introspection bodies.
	CurrentChannel func() string

	mtx             sync.RWMutex // Protects conns and channels
	nextConnID      uint64
	conns           map[uint64]*Conn
	channels        map[string]*channel
	maxChannels     int
	maxChannelsTime time.Time
	maxConns        int
	maxConnsTime    time.Time

	totalConnections  atomic.Int64
	activeConnections atomic.Int64
	messagesSent      atomic.Int64
	messagesReceived  atomic.Int64
	errors            atomic.Int64
}

// New creates a new Relay.
func New(log *logrus.Logger) *Relay {
	now := time.Now()
	return &Relay{
		log:             log,
		startedAt:       now,
		conns:           make(map[uint64]*Conn),
		channels:        make(map[string]*channel),
		maxChannelsTime: now,
		maxConnsTime:    now,
	}
}

// join adds a connection to the named channel, creating the channel if it
// doesn't already exist.
func (r *Relay) join(c *Conn, name string) *channel {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	ch, ok := r.channels[name]
	if !ok {
		ch = newChannel(name)
		r.channels[name] = ch
		if len(r.channels) > r.maxChannels {
			r.maxChannels = len(r.channels)
			r.maxChannelsTime = time.Now()
		}
		r.log.WithFields(logrus.Fields{
			"channel": name,
		}).Info("Channel created")
	}
	ch.add(c)
	return ch
}

// leave removes a connection from every channel it belongs to, destroying
// channels left without members.
func (r *Relay) leave(c *Conn) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for name, ch := range r.channels {
		member, more := ch.remove(c.id)
		if !member {
			continue
		}
		if !more {
			delete(r.channels, name)
			r.log.WithFields(logrus.Fields{
				"channel": name,
			}).Info("Channel destroyed")
			continue
		}

		// Tell the remaining members the client is gone.
		notice := model.System("A client left the channel")
		notice.Channel = name
		r.broadcast(ch, notice, c.id)
	}
}

// lookup finds a channel by name.
func (r *Relay) lookup(name string) (*channel, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// ChannelNames returns the names of all active channels, sorted.
func (r *Relay) ChannelNames() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MemberCount returns the number of members in the named channel, or 0 if
// the channel doesn't exist.
func (r *Relay) MemberCount(name string) int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	ch, ok := r.channels[name]
	if !ok {
		return 0
	}
	return ch.memberCount()
}

// addConn registers a newly upgraded connection.
func (r *Relay) addConn(c *Conn) {
	r.mtx.Lock()
	r.conns[c.id] = c
	if len(r.conns) > r.maxConns {
		r.maxConns = len(r.conns)
		r.maxConnsTime = time.Now()
	}
	r.mtx.Unlock()

	r.totalConnections.Add(1)
	r.activeConnections.Add(1)
}

// dropConn removes a closed connection and takes it out of every channel.
func (r *Relay) dropConn(c *Conn) {
	r.leave(c)

	r.mtx.Lock()
	_, ok := r.conns[c.id]
	delete(r.conns, c.id)
	r.mtx.Unlock()

	if ok {
		r.activeConnections.Add(-1)
	}
}

// Stats contains summary information about a running relay.
type Stats struct {
	Uptime            time.Duration `json:"uptime"`
	TotalConnections  int64         `json:"total_connections"`
	ActiveConnections int64         `json:"active_connections"`
	MessagesSent      int64         `json:"messages_sent"`
	MessagesReceived  int64         `json:"messages_received"`
	Errors            int64         `json:"errors"`
	NumChannels       int           `json:"num_channels"`
	MaxChannels       int           `json:"max_channels"`
	MaxChannelsAt     time.Time     `json:"max_channels_at"`
	MaxConnections    int           `json:"max_connections"`
	MaxConnectionsAt  time.Time     `json:"max_connections_at"`
}

// Stats gets stats for this relay.
func (r *Relay) Stats() Stats {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	return Stats{
		Uptime:            time.Since(r.startedAt),
		TotalConnections:  r.totalConnections.Load(),
		ActiveConnections: r.activeConnections.Load(),
		MessagesSent:      r.messagesSent.Load(),
		MessagesReceived:  r.messagesReceived.Load(),
		Errors:            r.errors.Load(),
		NumChannels:       len(r.channels),
		MaxChannels:       r.maxChannels,
		MaxChannelsAt:     r.maxChannelsTime,
		MaxConnections:    r.maxConns,
		MaxConnectionsAt:  r.maxConnsTime,
	}
}
