// This source code is governed by the MIT license, which can be found in the LICENSE file.

package relay

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/model"
)

func marshalEnvelope(env model.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	return data, errors.Wrap(err, "Marshal envelope")
}

// handleMessage dispatches one inbound frame from a connection.
// Malformed frames are answered with an error envelope; the connection
// stays open.
func (r *Relay) handleMessage(c *Conn, data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.protocolError(c, "invalid message format")
		return
	}

	switch env.Type {
	case model.TypeJoin:
		r.handleJoin(c, env)
	case model.TypeMessage:
		r.handleChannelMessage(c, env)
	case model.TypeProgress:
		r.handleProgress(c, env, data)
	case "":
		r.protocolError(c, "message type is required")
	default:
		r.protocolError(c, "unknown message type: "+env.Type)
	}
}

func (r *Relay) handleJoin(c *Conn, env model.Envelope) {
	if env.Channel == "" {
		r.protocolError(c, "channel name is required")
		return
	}

	ch := r.join(c, env.Channel)
	r.log.WithFields(logrus.Fields{
		"conn":    c.id,
		"channel": env.Channel,
	}).Info("Joined channel")

	c.sendEnvelope(model.SystemReply(env.ID, env.Channel, "Connected to channel: "+env.Channel))

	// Tell everyone else in the channel about the new member.
	notice := model.System("A client joined the channel")
	notice.Channel = env.Channel
	r.broadcast(ch, notice, c.id)
}

func (r *Relay) handleChannelMessage(c *Conn, env model.Envelope) {
	if env.Channel == "" {
		r.protocolError(c, "channel name is required")
		return
	}

	ch, ok := r.lookup(env.Channel)
	if !ok || !ch.has(c.id) {
		r.protocolError(c, "not a member of channel: "+env.Channel)
		return
	}

	// Every current member gets the payload, the sender included.
	r.broadcast(ch, model.Broadcast(env.Channel, env.Message))
}

// handleProgress rebroadcasts a progress report unchanged to every member of
// the channel. The sender doesn't need to be a member, but the channel must
// exist.
func (r *Relay) handleProgress(c *Conn, env model.Envelope, data []byte) {
	ch, ok := r.lookup(env.Channel)
	if !ok {
		r.protocolError(c, "channel not found: "+env.Channel)
		return
	}

	_, failed := ch.broadcast(data)
	if failed > 0 {
		r.errors.Add(int64(failed))
		r.log.WithFields(logrus.Fields{
			"channel": env.Channel,
			"failed":  failed,
		}).Warn("Progress broadcast not delivered to some members")
	}
}

// broadcast serializes an envelope once and delivers it to the members of a
// channel, excluding the given connection ids. Per-member delivery failures
// are logged and counted, but never abort the remaining sends.
func (r *Relay) broadcast(ch *channel, env model.Envelope, excludeIDs ...uint64) {
	data, err := marshalEnvelope(env)
	if err != nil {
		r.errors.Add(1)
		r.log.WithFields(logrus.Fields{
			"channel": ch.name,
			"error":   err,
		}).Error("Cannot serialize broadcast")
		return
	}

	_, failed := ch.broadcast(data, excludeIDs...)
	if failed > 0 {
		r.errors.Add(int64(failed))
		r.log.WithFields(logrus.Fields{
			"channel": ch.name,
			"failed":  failed,
		}).Warn("Broadcast not delivered to some members")
	}
}

// protocolError answers a connection with an error envelope.
func (r *Relay) protocolError(c *Conn, reason string) {
	r.errors.Add(1)
	r.log.WithFields(logrus.Fields{
		"conn":   c.id,
		"reason": reason,
	}).Debug("Protocol error")
	c.sendEnvelope(model.Error(reason))
}
