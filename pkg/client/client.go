// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package client implements the local command client: it maintains a single
// websocket connection to the relay, correlates issued commands with inbound
// responses, extends deadlines on progress reports, and reconnects with
// bounded backoff when the transport drops.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/model"
)

const (
	// DefaultCommandTimeout is the deadline applied to commands issued
	// without an explicit timeout.
	DefaultCommandTimeout = time.Minute

	// ProgressWindow is the extended deadline re-armed each time a pending
	// command receives a progress report.
	ProgressWindow = 2 * time.Minute

	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	autoJoinDelay    = 2 * time.Second
)

// Client issues commands to a remote participant through the relay.
// Commands may be pending concurrently; each is tracked independently by id,
// while all of them share the one outbound transport.
type Client struct {
	log      *logrus.Logger
	url      string
	autoJoin bool

	pending *pendingTable

	mtx               sync.Mutex // Protects the connection state below
	state             State
	ws                *websocket.Conn
	channel           string
	closed            bool
	reconnectAttempts int
	reconnectTimer    *time.Timer

	writeMTX sync.Mutex // Serializes writes to the websocket
}

// New creates a client for the relay at serverURL (a ws:// or wss:// URL).
// If autoJoin is set, the client probes for the sole available channel
// shortly after each successful connect.
func New(log *logrus.Logger, serverURL string, autoJoin bool) *Client {
	return &Client{
		log:      log,
		url:      serverURL,
		autoJoin: autoJoin,
		pending:  newPendingTable(),
	}
}

// Connect establishes the outbound transport. It does nothing if a
// connection attempt is already in flight or a connection is already up.
// On failure the next attempt is scheduled with backoff.
func (c *Client) Connect(ctx context.Context) error {
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return errors.New("client is closed")
	}
	if c.state != Disconnected {
		c.mtx.Unlock()
		return nil
	}
	c.state = Connecting
	c.mtx.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.mtx.Lock()
		c.state = Disconnected
		c.mtx.Unlock()
		c.log.WithFields(logrus.Fields{
			"url":   c.url,
			"error": err,
		}).Warn("Cannot connect to relay")
		c.scheduleReconnect()
		return errors.Wrap(err, "Dial relay")
	}

	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		ws.Close()
		return errors.New("client is closed")
	}
	c.ws = ws
	c.state = ConnectedUnjoined
	c.reconnectAttempts = 0
	c.mtx.Unlock()

	c.log.WithFields(logrus.Fields{
		"url": c.url,
	}).Info("Connected to relay")
	go c.readLoop(ws)

	if c.autoJoin {
		time.AfterFunc(autoJoinDelay, func() {
			if _, err := c.AutoConnect(context.Background()); err != nil {
				c.log.WithFields(logrus.Fields{
					"error": err,
				}).Debug("Auto-connect probe failed")
			}
		})
	}
	return nil
}

// Close tears down the transport and stops any scheduled reconnect.
// Every pending command is rejected with ErrConnClosed.
func (c *Client) Close() {
	c.mtx.Lock()
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.ws = nil
	c.state = Disconnected
	c.channel = ""
	c.mtx.Unlock()

	if ws != nil {
		ws.Close()
	}
	c.pending.rejectAll(ErrConnClosed)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.state
}

// CurrentChannel returns the joined channel name, or "" if none is joined.
func (c *Client) CurrentChannel() string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.channel
}

// JoinChannel joins the named channel via a join round-trip with the relay.
func (c *Client) JoinChannel(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("channel name is required")
	}

	if _, err := c.SendCommand(ctx, "join", map[string]interface{}{"channel": name}, 0); err != nil {
		return errors.Wrap(err, "Join channel")
	}

	c.mtx.Lock()
	if c.state == ConnectedUnjoined || c.state == ConnectedJoined {
		c.channel = name
		c.state = ConnectedJoined
	}
	c.mtx.Unlock()

	c.log.WithFields(logrus.Fields{
		"channel": name,
	}).Info("Joined channel")
	return nil
}

// LeaveChannel forgets the joined channel. This is a local state change
// only; the transport stays up.
func (c *Client) LeaveChannel() {
	c.mtx.Lock()
	if c.state == ConnectedJoined {
		c.channel = ""
		c.state = ConnectedUnjoined
	}
	c.mtx.Unlock()
}

// SendCommand issues a command to the remote participant and waits for the
// correlated response, a timeout, or ctx cancellation. A timeout <= 0 means
// DefaultCommandTimeout. The deadline is extended by ProgressWindow each
// time the remote side reports progress for this command.
//
// If no transport is connected, the call fails immediately with
// ErrNotConnected and triggers a connection attempt for future calls. A
// non-join command issued while no channel is joined fails immediately with
// ErrNoChannel and produces no network traffic.
func (c *Client) SendCommand(ctx context.Context, command string, params map[string]interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	c.mtx.Lock()
	ws := c.ws
	state := c.state
	channel := c.channel
	c.mtx.Unlock()

	if ws == nil || state == Disconnected || state == Connecting {
		go func() {
			if err := c.Connect(context.Background()); err != nil {
				c.log.WithFields(logrus.Fields{
					"error": err,
				}).Debug("Connection attempt failed")
			}
		}()
		return nil, ErrNotConnected
	}

	isJoin := command == "join"
	if !isJoin && channel == "" {
		return nil, ErrNoChannel
	}

	id := uuid.NewString()
	env, err := commandEnvelope(id, command, channel, params)
	if err != nil {
		return nil, err
	}

	req := c.pending.add(id, timeout)
	if err := c.write(ws, env); err != nil {
		c.pending.take(id)
		return nil, errors.Wrap(err, "Write command")
	}

	select {
	case out := <-req.done:
		return out.result, out.err
	case <-ctx.Done():
		if c.pending.reject(id, ctx.Err()) {
			return nil, ctx.Err()
		}
		// An outcome slipped in before the rejection; use it.
		out := <-req.done
		return out.result, out.err
	}
}

// PendingCount returns the number of commands awaiting a response.
func (c *Client) PendingCount() int {
	return c.pending.size()
}

// commandEnvelope builds the wire envelope for a command. A join carries its
// target channel directly; every other command is wrapped in a message
// envelope addressed to the joined channel.
func commandEnvelope(id, command, channel string, params map[string]interface{}) (model.Envelope, error) {
	merged := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["commandId"] = id

	kind := model.TypeMessage
	if command == "join" {
		kind = model.TypeJoin
		target, _ := merged["channel"].(string)
		if target == "" {
			return model.Envelope{}, errors.New("join requires a channel")
		}
		channel = target
	}

	payload, err := json.Marshal(model.Command{ID: id, Command: command, Params: merged})
	if err != nil {
		return model.Envelope{}, errors.Wrap(err, "Marshal command")
	}
	return model.Envelope{ID: id, Type: kind, Channel: channel, Message: payload}, nil
}

func (c *Client) write(ws *websocket.Conn, env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "Marshal envelope")
	}

	c.writeMTX.Lock()
	defer c.writeMTX.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop pumps inbound envelopes from one websocket until it fails.
func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(ws, err)
			return
		}
		c.dispatch(data)
	}
}

// handleDisconnect reacts to transport loss: every pending command is
// rejected, and unless the client was closed deliberately, a reconnect is
// scheduled.
func (c *Client) handleDisconnect(ws *websocket.Conn, cause error) {
	c.mtx.Lock()
	if c.ws != ws {
		// A stale pump for a transport that was already replaced.
		c.mtx.Unlock()
		return
	}
	c.ws = nil
	c.state = Disconnected
	c.channel = ""
	closed := c.closed
	c.mtx.Unlock()

	ws.Close()
	c.pending.rejectAll(ErrConnClosed)

	if closed {
		return
	}
	c.log.WithFields(logrus.Fields{
		"error": cause,
	}).Warn("Connection to relay lost")
	c.scheduleReconnect()
}

// scheduleReconnect arms a single reconnect attempt after a backoff delay.
// No attempt is scheduled while one is pending, in flight, or while the
// client is connected or closed.
func (c *Client) scheduleReconnect() {
	c.mtx.Lock()
	if c.closed || c.state != Disconnected || c.reconnectTimer != nil {
		c.mtx.Unlock()
		return
	}
	attempt := c.reconnectAttempts
	c.reconnectAttempts++
	delay := reconnectDelay(attempt)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mtx.Lock()
		c.reconnectTimer = nil
		c.mtx.Unlock()
		if err := c.Connect(context.Background()); err != nil {
			c.log.WithFields(logrus.Fields{
				"error": err,
			}).Debug("Reconnect attempt failed")
		}
	})
	c.mtx.Unlock()

	c.log.WithFields(logrus.Fields{
		"attempt": attempt + 1,
		"delay":   delay,
	}).Info("Reconnect scheduled")
}
