// Copyright (c) 2026 The Tcpserv Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tcpserv

import (
	"net/netip"
	"sync"
)

// State is the connection-state code of a protocol control block,
// mirroring the TCP state machine of the underlying stack.
type State uint8

const (
	// StateClosed is the sentinel state of a closed or never-opened handle.
	StateClosed State = iota
	// StateListen marks a handle waiting for inbound connections.
	StateListen
	// StateSynSent marks an active open in progress.
	StateSynSent
	// StateSynRcvd marks a passive open in progress.
	StateSynRcvd
	// StateEstablished marks a fully opened connection.
	StateEstablished
	// StateFinWait1, StateFinWait2, StateCloseWait, StateClosing, StateLastAck
	// and StateTimeWait mark the teardown half of the state machine.
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

// String returns the string representation of the state code.
func (s State) String() string {
	states := []string{
		"CLOSED", "LISTEN", "SYN_SENT", "SYN_RCVD", "ESTABLISHED",
		"FIN_WAIT_1", "FIN_WAIT_2", "CLOSE_WAIT", "CLOSING", "LAST_ACK", "TIME_WAIT",
	}
	if int(s) < len(states) {
		return states[s]
	}
	return "UNKNOWN"
}

// AcceptFunc is the callback a Server registers on its listening handle.
// The stack invokes it from its input-processing context whenever a new
// inbound connection completes the handshake, so implementations must not
// block and must not call back into the stack without the stack guard.
type AcceptFunc func(h ConnHandle, err error)

// Stack is the embedded TCP/IP stack a Server drives. The stack owns all of
// TCP proper; tcpserv only allocates handles from it and reacts to its
// callbacks.
type Stack interface {
	// NewHandle allocates an unbound protocol control block.
	NewHandle() (Handle, error)

	// Guard returns the lock that excludes the stack's periodic
	// timeout-processing routine while held. Every mutation of shared
	// handle state races with that routine and must run inside it.
	Guard() sync.Locker
}

// Handle is an unbound protocol control block, the result of Stack.NewHandle.
// A successful Listen consumes it; the returned ListenHandle owns the
// underlying resources from then on.
type Handle interface {
	// SetReuseAddr toggles address reuse on the handle before binding.
	SetReuseAddr(on bool)

	// Bind attaches the handle to a local address and port. Port 0 requests
	// an ephemeral port; the effective one is reported by the listening
	// handle after Listen.
	Bind(addr netip.Addr, port uint16) error

	// Listen switches the bound handle into the listening state with the
	// given backlog capacity.
	Listen(backlog int) (ListenHandle, error)

	// Close releases the handle. Needed only when Bind or Listen fails.
	Close() error
}

// ListenHandle is a listening protocol control block.
type ListenHandle interface {
	// OnAccept registers the accept callback. At most one callback is
	// registered per listening handle; registering again replaces it.
	OnAccept(fn AcceptFunc)

	// LocalPort reports the effective bound port.
	LocalPort() uint16

	// State reports the handle's connection-state code.
	State() State

	// PendingAccepts reports the stack's own count of connections accepted
	// but not yet acknowledged through ConnHandle.BacklogAccepted.
	PendingAccepts() int

	// MaxPendingAccepts reports the backlog capacity the handle was
	// configured with.
	MaxPendingAccepts() int

	// Close stops listening and releases the handle.
	Close() error
}

// ConnHandle is an accepted per-connection protocol control block, handed to
// the accept callback. The stack keeps buffering inbound data on it whether
// or not the application has claimed the connection.
type ConnHandle interface {
	// State reports the handle's connection-state code.
	State() State

	// BufferedBytes reports how much inbound data the stack has buffered on
	// this connection and the application has not read yet.
	BufferedBytes() int

	// SetNoDelay toggles send-coalescing (Nagle) on the connection.
	SetNoDelay(on bool)

	// BacklogDelayed marks the connection's backlog slot as occupied but not
	// yet acknowledged. Call under the stack guard.
	BacklogDelayed()

	// BacklogAccepted releases the connection's backlog slot, permitting one
	// more pending connection on the listener. Call under the stack guard.
	BacklogAccepted()

	// OnDiscard registers a callback fired when the stack tears the
	// connection down before the application has claimed it.
	OnDiscard(fn func())

	// Read copies buffered inbound data into p.
	Read(p []byte) (n int, err error)

	// Write queues p for transmission.
	Write(p []byte) (n int, err error)

	// Close closes the connection.
	Close() error
}
