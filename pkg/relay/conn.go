// This source code is governed by the MIT license, which can be found in the LICENSE file.

package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/model"
)

const (
	sendBuffSize = 16               // Buffer size of the queue for writing to a connection
	writeWait    = 10 * time.Second // Allowed time for a single write to complete
)

// A Conn represents one websocket connection on the relay.
// Serialized envelopes enqueued to send are written by the write pump;
// inbound messages are processed one at a time by the read pump.
type Conn struct {
	id    uint64
	ws    *websocket.Conn
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	relay *Relay
}

// newConn initializes a connection and starts its pumps.
// When either pump exits, the connection is removed from every channel.
func newConn(r *Relay, ws *websocket.Conn, id uint64) *Conn {
	c := &Conn{
		id:    id,
		ws:    ws,
		send:  make(chan []byte, sendBuffSize),
		done:  make(chan struct{}),
		relay: r,
	}
	go c.writePump()
	go c.readPump()
	return c
}

// enqueue queues already-serialized data for writing.
// It reports false if the connection is stopped or its queue is full;
// it never blocks.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// sendEnvelope serializes an envelope and queues it for writing.
func (c *Conn) sendEnvelope(env model.Envelope) bool {
	data, err := marshalEnvelope(env)
	if err != nil {
		c.relay.log.WithFields(logrus.Fields{
			"conn":  c.id,
			"error": err,
		}).Error("Cannot serialize envelope")
		return false
	}
	return c.enqueue(data)
}

// writePump writes queued data to the websocket, and pings the peer when the
// relay has a ping interval configured.
func (c *Conn) writePump() {
	var pings <-chan time.Time
	if c.relay.PingInterval > 0 {
		ticker := time.NewTicker(c.relay.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	defer c.stop()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.relay.log.WithFields(logrus.Fields{
					"conn":  c.id,
					"error": err,
				}).Debug("Write failed")
				return
			}
			c.relay.messagesSent.Add(1)

		case <-pings:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump reads messages from the websocket and dispatches them in order.
func (c *Conn) readPump() {
	defer func() {
		c.stop()
		c.relay.dropConn(c)
		c.relay.log.WithFields(logrus.Fields{
			"conn": c.id,
		}).Info("Disconnected")
	}()

	if c.relay.PingInterval > 0 {
		pongWait := 2 * c.relay.PingInterval
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.relay.log.WithFields(logrus.Fields{
					"conn":  c.id,
					"error": err,
				}).Debug("Read failed")
			}
			return
		}
		c.relay.messagesReceived.Add(1)
		c.relay.handleMessage(c, data)
	}
}

// stop closes the connection. It is idempotent.
func (c *Conn) stop() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}
