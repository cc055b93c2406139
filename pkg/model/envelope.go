// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package model defines the envelopes exchanged between the relay, the
// local command client, and remote plugin participants.
package model

import "encoding/json"

// Envelope kinds. Every frame on the wire is an Envelope tagged with one of
// these in its "type" field.
const (
	TypeJoin      = "join"
	TypeMessage   = "message"
	TypeProgress  = "progress_update"
	TypeSystem    = "system"
	TypeError     = "error"
	TypeBroadcast = "broadcast"
)

// An Envelope is a single framed message.
// Message is kept raw so the relay can rebroadcast payloads without
// interpreting them, and so permissive payload shapes (plain strings as well
// as objects) survive a round trip unchanged.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// A Command is the payload of an outgoing command envelope.
type Command struct {
	ID      string                 `json:"id"`
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// A Response is the payload of an inbound envelope that answers a command.
// A response is successful when Result is present and Error is empty.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Progress is the payload of a progress_update envelope, reported by a
// remote participant while a long-running command is still executing.
type Progress struct {
	CommandType string          `json:"commandType,omitempty"`
	Progress    float64         `json:"progress,omitempty"`
	Message     string          `json:"message,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// System creates a system envelope carrying a plain text message.
func System(text string) Envelope {
	raw, _ := json.Marshal(text)
	return Envelope{Type: TypeSystem, Message: raw}
}

// SystemReply creates a system envelope answering the command with the given
// id on a channel. The embedded message echoes the id so the issuer can
// correlate the reply.
func SystemReply(id, channel string, result interface{}) Envelope {
	raw, _ := json.Marshal(Response{ID: id, Result: mustMarshal(result)})
	return Envelope{Type: TypeSystem, Channel: channel, Message: raw}
}

// Error creates an error envelope with the given reason.
func Error(reason string) Envelope {
	raw, _ := json.Marshal(reason)
	return Envelope{Type: TypeError, Message: raw}
}

// Broadcast creates a broadcast envelope relaying a payload to the members
// of a channel.
func Broadcast(channel string, message json.RawMessage) Envelope {
	return Envelope{Type: TypeBroadcast, Channel: channel, Message: message}
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(err.Error())
	}
	return raw
}
