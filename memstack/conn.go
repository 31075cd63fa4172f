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

package memstack

import (
	"io"

	"github.com/embnet/tcpserv"
	errorx "github.com/embnet/tcpserv/pkg/errors"
	bbPool "github.com/embnet/tcpserv/pkg/pool/bytebuffer"
)

// conn is an accepted per-connection protocol control block. Inbound bytes
// pile up in a pooled buffer from the moment the peer writes them, whether
// or not the application has claimed the connection yet.
type conn struct {
	stack *Stack
	ln    *listenHandle

	state      tcpserv.State
	peerClosed bool
	delayed    bool // occupies an unacknowledged backlog slot
	noDelay    bool
	discardFn  func()

	inbound  *bbPool.ByteBuffer // peer -> application
	inOff    int
	outbound *bbPool.ByteBuffer // application -> peer
	outOff   int
}

func newConn(s *Stack, ln *listenHandle) *conn {
	return &conn{
		stack:    s,
		ln:       ln,
		state:    tcpserv.StateEstablished,
		inbound:  bbPool.Get(),
		outbound: bbPool.Get(),
	}
}

// State implements tcpserv.ConnHandle.
func (c *conn) State() tcpserv.State {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	return c.state
}

// BufferedBytes implements tcpserv.ConnHandle.
func (c *conn) BufferedBytes() int {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	if c.inbound == nil {
		return 0
	}
	return c.inbound.Len() - c.inOff
}

// SetNoDelay implements tcpserv.ConnHandle.
func (c *conn) SetNoDelay(on bool) {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	c.noDelay = on
}

// BacklogDelayed implements tcpserv.ConnHandle. Assumes the guard is held.
func (c *conn) BacklogDelayed() {
	if !c.delayed {
		c.delayed = true
		c.ln.pendingAccepts++
	}
}

// BacklogAccepted implements tcpserv.ConnHandle. Assumes the guard is held.
func (c *conn) BacklogAccepted() {
	if c.delayed {
		c.delayed = false
		c.ln.pendingAccepts--
	}
}

// OnDiscard implements tcpserv.ConnHandle.
func (c *conn) OnDiscard(fn func()) {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	c.discardFn = fn
}

// Read implements tcpserv.ConnHandle. It never blocks: 0 bytes with a nil
// error means nothing is buffered yet, io.EOF means the peer closed and the
// buffer is drained.
func (c *conn) Read(p []byte) (int, error) {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	if c.state == tcpserv.StateClosed || c.inbound == nil {
		return 0, errorx.ErrHandleClosed
	}
	n := copy(p, c.inbound.B[c.inOff:])
	c.inOff += n
	if c.inOff == c.inbound.Len() {
		c.inbound.Reset()
		c.inOff = 0
		if n == 0 && c.peerClosed {
			return 0, io.EOF
		}
	}
	return n, nil
}

// Write implements tcpserv.ConnHandle.
func (c *conn) Write(p []byte) (int, error) {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	if c.state == tcpserv.StateClosed || c.outbound == nil {
		return 0, errorx.ErrHandleClosed
	}
	return c.outbound.Write(p)
}

// Close implements tcpserv.ConnHandle. A close after the peer's leaves the
// connection for Tick to reap; closing first parks it in TIME_WAIT.
func (c *conn) Close() error {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	if c.state == tcpserv.StateClosed {
		return nil
	}
	if c.peerClosed {
		c.reapLocked()
	} else {
		c.state = tcpserv.StateTimeWait
	}
	return nil
}

// reapLocked releases the connection's buffers and finishes the teardown.
// Assumes the guard is held.
func (c *conn) reapLocked() {
	c.state = tcpserv.StateClosed
	bbPool.Put(c.inbound)
	bbPool.Put(c.outbound)
	c.inbound, c.outbound = nil, nil
	c.inOff, c.outOff = 0, 0
}

// Peer is the remote end of a dialed connection, used by tests and examples
// to feed and observe a server.
type Peer struct {
	c *conn
}

// Write sends p to the server side, buffering it on the connection whether
// or not the application has claimed it yet.
func (p *Peer) Write(b []byte) (int, error) {
	c := p.c
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	if c.state == tcpserv.StateClosed || c.peerClosed || c.inbound == nil {
		return 0, errorx.ErrHandleClosed
	}
	return c.inbound.Write(b)
}

// Read receives data the server side has written.
func (p *Peer) Read(b []byte) (int, error) {
	c := p.c
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	if c.outbound == nil {
		return 0, errorx.ErrHandleClosed
	}
	n := copy(b, c.outbound.B[c.outOff:])
	c.outOff += n
	if c.outOff == c.outbound.Len() {
		c.outbound.Reset()
		c.outOff = 0
	}
	return n, nil
}

// Close closes the peer's half gracefully: buffered data stays readable and
// the connection stays claimable.
func (p *Peer) Close() error {
	c := p.c
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	if c.peerClosed {
		return nil
	}
	c.peerClosed = true
	if c.state == tcpserv.StateEstablished {
		c.state = tcpserv.StateCloseWait
	}
	return nil
}

// Reset aborts the connection the way an RST segment would: the stack tears
// the control block down immediately and fires the discard notification so a
// still-queued connection gets unlinked.
func (p *Peer) Reset() {
	c := p.c
	c.stack.mu.Lock()
	if c.state == tcpserv.StateClosed {
		c.stack.mu.Unlock()
		return
	}
	c.reapLocked()
	fn := c.discardFn
	c.discardFn = nil
	c.stack.mu.Unlock()

	// Fired without the guard; the listener releases the backlog slot
	// itself through BacklogAccepted.
	if fn != nil {
		fn()
	}
}
