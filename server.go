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

	errorx "github.com/embnet/tcpserv/pkg/errors"
	"github.com/embnet/tcpserv/pkg/logging"
)

// Server is a server-socket façade over an embedded TCP/IP stack: it owns a
// listening handle, queues connections the stack accepts until the
// application claims them, and presents the callback-driven stack as a
// synchronous polling API. None of its methods block; polling cadence is the
// caller's business.
type Server struct {
	mu      sync.Mutex
	stack   Stack
	ln      ListenHandle // non-nil only while listening
	pending pendingQueue

	addr           netip.Addr
	port           uint16
	backlog        int
	noDelay        NoDelayMode
	defaultNoDelay bool

	logger logging.Logger
}

// NewServer creates a Server driving the given stack. The server does not
// listen until Begin is called.
func NewServer(stack Stack, opts ...Option) *Server {
	options := loadOptions(opts...)
	logger := options.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	backlog := options.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Server{
		stack:          stack,
		addr:           options.Addr,
		port:           options.Port,
		backlog:        backlog,
		noDelay:        options.NoDelay,
		defaultNoDelay: options.DefaultNoDelay,
		logger:         logger,
	}
}

// Begin starts listening on the configured port with the configured backlog
// capacity, closing any existing listening handle first.
func (s *Server) Begin() error {
	return s.BeginWithBacklog(s.port, s.backlog)
}

// BeginOn starts listening on the given port with the default backlog
// capacity.
func (s *Server) BeginOn(port uint16) error {
	return s.BeginWithBacklog(port, DefaultBacklog)
}

// BeginWithBacklog starts listening on the given port with the given backlog
// capacity. Any existing listening handle is closed first. A backlog of zero
// means "do not listen": the server stays closed and ErrZeroBacklog is
// returned. Allocation, bind and listen failures likewise leave the server
// closed; the error tells the caller why, and Status() keeps reporting
// StateClosed for code that polls instead.
//
// Port 0 requests an ephemeral port; on success Port() reports the
// stack-assigned one.
func (s *Server) BeginWithBacklog(port uint16, backlog int) error {
	s.Close()

	if s.stack == nil {
		return errorx.ErrStackRequired
	}
	if backlog == 0 {
		return errorx.ErrZeroBacklog
	}

	s.mu.Lock()
	s.port = port
	s.backlog = backlog
	s.mu.Unlock()

	ln, err := s.listen(port, backlog)
	if err != nil {
		return err
	}

	// Register the callback before publishing the handle: a non-nil
	// listening handle implies the listener is reachable through it.
	ln.OnAccept(s.onAccept)

	s.mu.Lock()
	s.ln = ln
	s.port = ln.LocalPort()
	s.mu.Unlock()

	s.logger.Debugf("listening on port %d, backlog %d", ln.LocalPort(), backlog)
	return nil
}

// listen allocates, binds and switches a handle into the listening state.
// The whole sequence mutates shared stack state and runs under the stack
// guard to exclude its timeout-processing routine.
func (s *Server) listen(port uint16, backlog int) (ListenHandle, error) {
	guard := s.stack.Guard()
	guard.Lock()
	defer guard.Unlock()

	h, err := s.stack.NewHandle()
	if err != nil {
		return nil, errorx.ErrHandleAllocation
	}
	h.SetReuseAddr(true)
	if err = h.Bind(s.addr, port); err != nil {
		_ = h.Close()
		return nil, err
	}
	ln, err := h.Listen(backlog)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	return ln, nil
}

// onAccept is invoked from the stack's input-processing context for every
// inbound connection that completes the handshake. It always takes the
// connection, even when the application has not drained earlier ones, so the
// stack can start buffering inbound data right away instead of dropping it,
// and marks the backlog slot delayed until Accept acknowledges it.
func (s *Server) onAccept(h ConnHandle, err error) {
	if err != nil {
		s.logger.Warnf("accept callback delivered error: %v", err)
	}
	if h == nil {
		return
	}

	c := newClient(h)
	h.OnDiscard(func() { s.discard(c) })

	guard := s.stack.Guard()
	guard.Lock()
	h.BacklogDelayed()
	guard.Unlock()

	s.mu.Lock()
	s.pending.push(c)
	n := s.pending.len()
	s.mu.Unlock()

	s.logger.Debugf("accepted connection %s, %d pending", c.ID(), n)
}

// discard handles stack-initiated teardown of a still-queued connection: the
// client is unlinked from the pending queue and its backlog slot released,
// so Accept never hands out a context whose handle is already dead.
func (s *Server) discard(c *Client) {
	s.mu.Lock()
	removed := s.pending.remove(c)
	s.mu.Unlock()
	if !removed {
		// Already claimed by the application; teardown is its problem now.
		return
	}

	if h := c.Handle(); h != nil {
		guard := s.stack.Guard()
		guard.Lock()
		h.BacklogAccepted()
		guard.Unlock()
	}
	c.detach()
	s.logger.Debugf("discarded queued connection %s before claim", c.ID())
}

// HasClient reports whether at least one accepted connection is waiting to
// be claimed.
func (s *Server) HasClient() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.pending.empty()
}

// HasClientData scans the pending queue in arrival order and returns the
// buffered-byte count of the first connection with any inbound data, looking
// past connections that have not sent anything yet. It returns 0 when no
// queued connection is ready for reading. Accept still pops strictly in
// FIFO order regardless of which connection this peeked at.
func (s *Server) HasClientData() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.firstBuffered()
}

// HasMaxPendingClients reports whether the stack's pending-accept counter
// has reached the configured backlog capacity. Informational; connections
// beyond the cap are still queued, never silently dropped at this layer.
func (s *Server) HasMaxPendingClients() bool {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return false
	}
	return ln.PendingAccepts() >= ln.MaxPendingAccepts()
}

// Accept pops the oldest accepted connection off the pending queue, releases
// its backlog slot, applies the resolved no-delay policy and returns it with
// ownership transferred wholly to the caller. It never blocks; nil means
// nothing is pending.
func (s *Server) Accept() *Client {
	s.mu.Lock()
	c := s.pending.pop()
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	// The handle is gone when the peer closed the connection while it was
	// still queued; there is no backlog slot left to release then.
	if h := c.Handle(); h != nil {
		guard := s.stack.Guard()
		guard.Lock()
		h.BacklogAccepted()
		guard.Unlock()
	}

	c.SetNoDelay(s.NoDelay())
	s.logger.Debugf("claimed connection %s, status %s, %d bytes buffered",
		c.ID(), c.Status(), c.BufferedBytes())
	return c
}

// Available is the legacy alias of Accept; the status out-parameter is
// accepted for API compatibility and never written.
func (s *Server) Available(status *uint8) *Client {
	_ = status
	return s.Accept()
}

// SetNoDelay forces the no-delay policy applied to connections returned by
// Accept from now on.
func (s *Server) SetNoDelay(noDelay bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if noDelay {
		s.noDelay = NoDelayOn
	} else {
		s.noDelay = NoDelayOff
	}
}

// NoDelay resolves the tri-state no-delay policy, falling back to the
// configured default when no explicit choice was made.
func (s *Server) NoDelay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.noDelay {
	case NoDelayOn:
		return true
	case NoDelayOff:
		return false
	default:
		return s.defaultNoDelay
	}
}

// Status returns the listening handle's connection-state code, StateClosed
// when the server is not listening.
func (s *Server) Status() State {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return StateClosed
	}
	return ln.State()
}

// Port returns the port the server listens on. After Begin with port 0 it
// reports the stack-assigned ephemeral port.
func (s *Server) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Addr returns the local address the server binds; the zero value is the
// wildcard address.
func (s *Server) Addr() netip.Addr {
	return s.addr
}

// Close stops listening and drops any still-queued connections, closing
// their handles. Idempotent; safe to call when never opened. The listening
// handle is released under the stack guard.
func (s *Server) Close() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	var dropped []*Client
	for c := s.pending.pop(); c != nil; c = s.pending.pop() {
		dropped = append(dropped, c)
	}
	s.mu.Unlock()

	if ln == nil && dropped == nil {
		return
	}

	guard := s.stack.Guard()
	guard.Lock()
	if ln != nil {
		if err := ln.Close(); err != nil {
			s.logger.Errorf("failed to close listening handle: %v", err)
		}
	}
	guard.Unlock()

	for _, c := range dropped {
		if err := c.Close(); err != nil {
			s.logger.Warnf("failed to close dropped connection %s: %v", c.ID(), err)
		}
	}
}

// Stop is the alias of Close.
func (s *Server) Stop() {
	s.Close()
}
