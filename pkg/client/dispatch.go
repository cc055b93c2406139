// This source code is governed by the MIT license, which can be found in the LICENSE file.

package client

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/model"
)

// dispatch routes one inbound frame by its discriminant. Frames that match
// no pending command are logged and dropped rather than treated as protocol
// errors; the relay retransmits freely and upstream tolerates it.
func (c *Client) dispatch(data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.WithFields(logrus.Fields{
			"error": err,
		}).Debug("Dropping unparseable frame")
		return
	}

	switch env.Type {
	case model.TypeProgress:
		c.handleProgress(env)
	case model.TypeError:
		c.handleError(env)
	default:
		c.handleResponse(env)
	}
}

// handleProgress extends the deadline of the matching pending command. The
// command is not resolved; as long as the remote side keeps reporting
// progress, a long-running operation never expires on wall-clock time alone.
func (c *Client) handleProgress(env model.Envelope) {
	if env.ID == "" {
		return
	}

	var prog model.Progress
	json.Unmarshal(env.Message, &prog)

	if !c.pending.extend(env.ID, ProgressWindow) {
		c.log.WithFields(logrus.Fields{
			"id": env.ID,
		}).Debug("Progress for unknown command")
		return
	}
	c.log.WithFields(logrus.Fields{
		"id":       env.ID,
		"command":  prog.CommandType,
		"progress": prog.Progress,
	}).Debug("Command progress")
}

// handleResponse resolves or rejects the pending command whose id matches
// the embedded message. Payloads with no id, or with neither result nor
// error, are generic broadcasts and are ignored.
func (c *Client) handleResponse(env model.Envelope) {
	if len(env.Message) == 0 {
		return
	}

	var resp model.Response
	if err := json.Unmarshal(env.Message, &resp); err != nil || resp.ID == "" {
		c.log.WithFields(logrus.Fields{
			"type": env.Type,
		}).Debug("Broadcast without a command id")
		return
	}

	switch {
	case resp.Error != "":
		c.pending.reject(resp.ID, errors.New(resp.Error))
	case len(resp.Result) > 0:
		c.pending.resolve(resp.ID, resp.Result)
	default:
		c.log.WithFields(logrus.Fields{
			"id": resp.ID,
		}).Debug("Broadcast carries neither result nor error")
	}
}

// handleError reacts to an error envelope from the relay. If it can be
// correlated to a pending command it rejects that command, otherwise it is
// only logged.
func (c *Client) handleError(env model.Envelope) {
	var resp model.Response
	if err := json.Unmarshal(env.Message, &resp); err == nil && resp.ID != "" && resp.Error != "" {
		if c.pending.reject(resp.ID, errors.New(resp.Error)) {
			return
		}
	}

	var reason string
	if err := json.Unmarshal(env.Message, &reason); err != nil {
		reason = string(env.Message)
	}
	c.log.WithFields(logrus.Fields{
		"reason": reason,
	}).Warn("Relay reported an error")
}
