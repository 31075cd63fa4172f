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

//go:build linux || freebsd || dragonfly || darwin

package netstack

import (
	"net/netip"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/embnet/tcpserv"
	errorx "github.com/embnet/tcpserv/pkg/errors"
)

// Stack drives kernel sockets through the tcpserv stack interfaces. The
// kernel plays the embedded stack's role; Poll plays its input-processing
// routine, pulling completed connections off listening sockets and firing
// accept callbacks. While every backlog slot of a listener is delayed,
// Poll leaves further connections in the kernel's own accept queue, which
// is the two-phase backlog expressed against a hosted socket.
type Stack struct {
	mu        sync.Mutex
	listeners []*listenHandle
}

// New creates a kernel-socket stack.
func New() *Stack {
	return new(Stack)
}

// Guard implements tcpserv.Stack.
func (s *Stack) Guard() sync.Locker {
	return &s.mu
}

// NewHandle implements tcpserv.Stack. Assumes the guard is held.
func (s *Stack) NewHandle() (tcpserv.Handle, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, errorx.ErrHandleAllocation
	}
	// Not every supported platform accepts SOCK_NONBLOCK|SOCK_CLOEXEC at
	// socket creation, so set both after the fact.
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("fcntl nonblock", err)
	}
	unix.CloseOnExec(fd)
	return &rawHandle{stack: s, fd: fd}, nil
}

// Poll pulls completed connections off every listening socket and fires the
// registered accept callbacks. Call it from the application's polling loop;
// it never blocks.
func (s *Stack) Poll() {
	s.mu.Lock()
	listeners := make([]*listenHandle, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, ln := range listeners {
		ln.poll()
	}
}

type rawHandle struct {
	stack *Stack
	fd    int
}

// SetReuseAddr implements tcpserv.Handle. Assumes the guard is held.
func (h *rawHandle) SetReuseAddr(on bool) {
	v := 0
	if on {
		v = 1
	}
	_ = unix.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
}

// Bind implements tcpserv.Handle. Assumes the guard is held.
func (h *rawHandle) Bind(addr netip.Addr, port uint16) error {
	sa := &unix.SockaddrInet4{Port: int(port)}
	if addr.IsValid() {
		if !addr.Is4() && !addr.Is4In6() {
			return errorx.ErrInvalidAddress
		}
		sa.Addr = addr.Unmap().As4()
	}
	switch err := unix.Bind(h.fd, sa); err {
	case nil:
		return nil
	case unix.EADDRINUSE:
		return errorx.ErrAddressInUse
	case unix.EADDRNOTAVAIL:
		return errorx.ErrInvalidAddress
	default:
		return os.NewSyscallError("bind", err)
	}
}

// Listen implements tcpserv.Handle. Assumes the guard is held.
func (h *rawHandle) Listen(backlog int) (tcpserv.ListenHandle, error) {
	if err := unix.Listen(h.fd, backlog); err != nil {
		switch err {
		case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
			return nil, errorx.ErrResourceExhausted
		default:
			return nil, os.NewSyscallError("listen", err)
		}
	}
	sa, err := unix.Getsockname(h.fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return nil, errorx.ErrInvalidAddress
	}
	ln := &listenHandle{stack: h.stack, fd: h.fd, port: uint16(sa4.Port), backlog: backlog}
	h.stack.listeners = append(h.stack.listeners, ln)
	h.fd = -1
	return ln, nil
}

// Close implements tcpserv.Handle. Assumes the guard is held.
func (h *rawHandle) Close() error {
	if h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	return os.NewSyscallError("close", err)
}

type listenHandle struct {
	stack   *Stack
	fd      int
	port    uint16
	backlog int
	closed  bool

	acceptFn tcpserv.AcceptFunc
	pending  int // delayed, unacknowledged backlog slots
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
	if ln.closed {
		return tcpserv.StateClosed
	}
	return tcpserv.StateListen
}

// PendingAccepts implements tcpserv.ListenHandle.
func (ln *listenHandle) PendingAccepts() int {
	ln.stack.mu.Lock()
	defer ln.stack.mu.Unlock()
	return ln.pending
}

// MaxPendingAccepts implements tcpserv.ListenHandle.
func (ln *listenHandle) MaxPendingAccepts() int {
	return ln.backlog
}

// Close implements tcpserv.ListenHandle. Assumes the guard is held.
func (ln *listenHandle) Close() error {
	if ln.closed {
		return nil
	}
	ln.closed = true
	ln.acceptFn = nil
	for i, l := range ln.stack.listeners {
		if l == ln {
			ln.stack.listeners = append(ln.stack.listeners[:i], ln.stack.listeners[i+1:]...)
			break
		}
	}
	return os.NewSyscallError("close", unix.Close(ln.fd))
}

// poll accepts as many completed connections as the unacknowledged backlog
// allows, leaving the rest queued in the kernel until the application
// drains.
func (ln *listenHandle) poll() {
	for {
		ln.stack.mu.Lock()
		if ln.closed || ln.acceptFn == nil || ln.pending >= ln.backlog {
			ln.stack.mu.Unlock()
			return
		}
		fd := ln.fd
		fn := ln.acceptFn
		ln.stack.mu.Unlock()

		nfd, _, err := unix.Accept(fd)
		if err != nil {
			// EAGAIN means the kernel queue is drained; anything else is
			// reported through the callback like a stack input error.
			if err != unix.EAGAIN && err != unix.ECONNABORTED {
				fn(nil, os.NewSyscallError("accept", err))
			}
			return
		}
		if err = unix.SetNonblock(nfd, true); err != nil {
			_ = unix.Close(nfd)
			fn(nil, os.NewSyscallError("fcntl nonblock", err))
			return
		}
		unix.CloseOnExec(nfd)

		fn(&conn{stack: ln.stack, ln: ln, fd: nfd}, nil)
	}
}
