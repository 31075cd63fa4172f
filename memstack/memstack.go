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

// Package memstack is an in-memory loopback implementation of the tcpserv
// stack interfaces, for tests and examples. Peers connect with Dial and can
// write data into a connection's inbound buffer before the application has
// claimed it, close gracefully, or reset it, which exercises the discard
// path.
//
// Locking discipline mirrors a real embedded stack: the mutex returned by
// Guard is the stack's one big lock. Methods documented by the tcpserv
// interfaces as guard-held (NewHandle, Handle methods, ListenHandle.Close,
// BacklogDelayed, BacklogAccepted) assume the caller holds it; everything
// else locks internally. Callbacks always fire with the guard released.
package memstack

import (
	"errors"
	"net/netip"
	"sync"

	"github.com/embnet/tcpserv"
	errorx "github.com/embnet/tcpserv/pkg/errors"
)

var (
	// ErrConnectionRefused occurs when dialing a port nobody listens on.
	ErrConnectionRefused = errors.New("memstack: connection refused")
)

// DefaultMaxListeners caps concurrent listening handles per stack, matching
// the small listener budgets of embedded stacks.
const DefaultMaxListeners = 8

const ephemeralBase = 0xC000 // 49152, the IANA dynamic port range

// Stack is an in-memory TCP/IP stack. The zero value is not usable; call New.
type Stack struct {
	mu sync.Mutex // the stack guard, also serializing Tick

	maxListeners int
	listeners    map[uint16]*listenHandle
	conns        []*conn
	nextPort     uint16
}

// New creates an empty in-memory stack.
func New() *Stack {
	return &Stack{
		maxListeners: DefaultMaxListeners,
		listeners:    make(map[uint16]*listenHandle),
		nextPort:     ephemeralBase,
	}
}

// Guard returns the stack's one big lock. Holding it excludes Tick, the
// stand-in for the periodic timeout-processing routine.
func (s *Stack) Guard() sync.Locker {
	return &s.mu
}

// NewHandle allocates an unbound handle. Assumes the guard is held.
func (s *Stack) NewHandle() (tcpserv.Handle, error) {
	return &rawHandle{stack: s}, nil
}

// Tick is the periodic timeout-processing routine: it reaps connections that
// finished the teardown handshake. Real stacks run this from a timer
// interrupt; here it contends on the guard exactly the way that interrupt
// would.
func (s *Stack) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.conns[:0]
	for _, c := range s.conns {
		switch c.state {
		case tcpserv.StateTimeWait:
			c.reapLocked()
		case tcpserv.StateClosed:
			// already torn down, just forget it
		default:
			kept = append(kept, c)
		}
	}
	s.conns = kept
}

// Dial connects a test peer to the given port, driving the listener's accept
// callback synchronously the way the stack's input processing would.
func (s *Stack) Dial(port uint16) (*Peer, error) {
	s.mu.Lock()
	ln := s.listeners[port]
	if ln == nil || ln.state != tcpserv.StateListen || ln.acceptFn == nil {
		s.mu.Unlock()
		return nil, ErrConnectionRefused
	}
	c := newConn(s, ln)
	s.conns = append(s.conns, c)
	fn := ln.acceptFn
	s.mu.Unlock()

	// Input-processing context: the guard is not held here, the callback
	// takes it itself for the slot-delay step.
	fn(c, nil)
	return &Peer{c: c}, nil
}

// rawHandle is an unbound protocol control block.
type rawHandle struct {
	stack     *Stack
	addr      netip.Addr
	port      uint16
	reuseAddr bool
	bound     bool
}

// SetReuseAddr implements tcpserv.Handle. Assumes the guard is held.
func (h *rawHandle) SetReuseAddr(on bool) {
	h.reuseAddr = on
}

// Bind implements tcpserv.Handle. Assumes the guard is held.
func (h *rawHandle) Bind(addr netip.Addr, port uint16) error {
	s := h.stack
	if port == 0 {
		port = s.ephemeralPortLocked()
	}
	if existing := s.listeners[port]; existing != nil {
		// Address reuse only lets a new listener take over a slot whose
		// previous owner has stopped listening.
		if !h.reuseAddr || existing.state == tcpserv.StateListen {
			return errorx.ErrAddressInUse
		}
	}
	h.addr = addr
	h.port = port
	h.bound = true
	return nil
}

// Listen implements tcpserv.Handle. Assumes the guard is held. On success the
// raw handle is consumed and the returned listening handle owns the port.
func (h *rawHandle) Listen(backlog int) (tcpserv.ListenHandle, error) {
	s := h.stack
	if !h.bound {
		return nil, errorx.ErrInvalidAddress
	}
	active := 0
	for _, ln := range s.listeners {
		if ln.state == tcpserv.StateListen {
			active++
		}
	}
	if active >= s.maxListeners {
		return nil, errorx.ErrResourceExhausted
	}
	ln := &listenHandle{
		stack:   s,
		addr:    h.addr,
		port:    h.port,
		backlog: backlog,
		state:   tcpserv.StateListen,
	}
	s.listeners[h.port] = ln
	h.bound = false
	return ln, nil
}

// Close implements tcpserv.Handle. Assumes the guard is held.
func (h *rawHandle) Close() error {
	h.bound = false
	return nil
}

func (s *Stack) ephemeralPortLocked() uint16 {
	for {
		port := s.nextPort
		s.nextPort++
		if s.nextPort == 0 {
			s.nextPort = ephemeralBase
		}
		if s.listeners[port] == nil {
			return port
		}
	}
}

// listenHandle is a listening protocol control block.
type listenHandle struct {
	stack    *Stack
	addr     netip.Addr
	port     uint16
	backlog  int
	state    tcpserv.State
	acceptFn tcpserv.AcceptFunc

	// accepted but not yet acknowledged through BacklogAccepted
	pendingAccepts int
}

// OnAccept implements tcpserv.ListenHandle.
func (ln *listenHandle) OnAccept(fn tcpserv.AcceptFunc) {
	ln.stack.mu.Lock()
	defer ln.stack.mu.Unlock()
	ln.acceptFn = fn
}

// LocalPort implements tcpserv.ListenHandle.
func (ln *listenHandle) LocalPort() uint16 {
	return ln.port
}

// State implements tcpserv.ListenHandle.
func (ln *listenHandle) State() tcpserv.State {
	ln.stack.mu.Lock()
	defer ln.stack.mu.Unlock()
	return ln.state
}

// PendingAccepts implements tcpserv.ListenHandle.
func (ln *listenHandle) PendingAccepts() int {
	ln.stack.mu.Lock()
	defer ln.stack.mu.Unlock()
	return ln.pendingAccepts
}

// MaxPendingAccepts implements tcpserv.ListenHandle.
func (ln *listenHandle) MaxPendingAccepts() int {
	return ln.backlog
}

// Close implements tcpserv.ListenHandle. Assumes the guard is held.
func (ln *listenHandle) Close() error {
	ln.state = tcpserv.StateClosed
	ln.acceptFn = nil
	if ln.stack.listeners[ln.port] == ln {
		delete(ln.stack.listeners, ln.port)
	}
	return nil
}
