// This source code is governed by the MIT license, which can be found in the LICENSE file.

package client

import (
	"strings"

	"github.com/pkg/errors"
)

// Errors surfaced to command callers. Each failure mode of a command is one
// of these (or wraps one), so callers can tell connection problems, channel
// problems, and deadline expiry apart.
var (
	// ErrNotConnected is returned when a command is issued without an
	// established transport. Issuing the command also triggers a connection
	// attempt for the benefit of future calls.
	ErrNotConnected = errors.New("not connected to a relay server")

	// ErrNoChannel is returned when a non-join command is issued before a
	// channel has been joined.
	ErrNoChannel = errors.New("must join a channel first")

	// ErrTimeout is returned when no response or progress arrives before a
	// pending command's deadline.
	ErrTimeout = errors.New("command timed out")

	// ErrConnClosed rejects every pending command when the transport closes.
	ErrConnClosed = errors.New("connection closed")

	// ErrNoParticipant is returned by AutoConnect when no channel is active,
	// meaning no remote participant is available to join.
	ErrNoParticipant = errors.New("no remote participant available")
)

// An AmbiguousChannelError is returned by AutoConnect when more than one
// channel is active and the caller must pick one explicitly.
type AmbiguousChannelError struct {
	Channels []string
}

func (e *AmbiguousChannelError) Error() string {
	return "multiple channels available, join one explicitly: " + strings.Join(e.Channels, ", ")
}
