// This source code is governed by the MIT license, which can be found in the LICENSE file.

package client

// State describes the client's single outbound connection.
// Exactly one state holds at any instant.
type State int

const (
	// Disconnected means no transport exists and none is being established.
	Disconnected State = iota
	// Connecting means a handshake is in flight.
	Connecting
	// ConnectedUnjoined means the transport is up but no channel is joined.
	ConnectedUnjoined
	// ConnectedJoined means the transport is up and a channel is joined.
	ConnectedJoined
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedUnjoined:
		return "connected"
	case ConnectedJoined:
		return "joined"
	default:
		return "unknown"
	}
}
