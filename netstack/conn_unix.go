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
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/embnet/tcpserv"
	errorx "github.com/embnet/tcpserv/pkg/errors"
)

// conn is an accepted kernel socket behind the tcpserv.ConnHandle interface.
// The kernel buffers inbound data on it from the moment of the handshake,
// so data sent before the application claims the connection is never lost.
type conn struct {
	stack   *Stack
	ln      *listenHandle
	fd      int
	closed  bool
	delayed bool
}

// State implements tcpserv.ConnHandle.
func (c *conn) State() tcpserv.State {
	c.stack.mu.Lock()
	defer c.stack.mu.Unlock()
	if c.closed {
		return tcpserv.StateClosed
	}
	return tcpserv.StateEstablished
}

// BufferedBytes implements tcpserv.ConnHandle: the kernel's count of unread
// inbound bytes on the socket.
func (c *conn) BufferedBytes() int {
	c.stack.mu.Lock()
	fd, closed := c.fd, c.closed
	c.stack.mu.Unlock()
	if closed {
		return 0
	}
	n, err := unix.IoctlGetInt(fd, fionread)
	if err != nil {
		return 0
	}
	return n
}

// SetNoDelay implements tcpserv.ConnHandle.
func (c *conn) SetNoDelay(on bool) {
	v := 0
	if on {
		v = 1
	}
	_ = unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

// BacklogDelayed implements tcpserv.ConnHandle. Assumes the guard is held.
func (c *conn) BacklogDelayed() {
	if !c.delayed {
		c.delayed = true
		c.ln.pending++
	}
}

// BacklogAccepted implements tcpserv.ConnHandle. Assumes the guard is held.
func (c *conn) BacklogAccepted() {
	if c.delayed {
		c.delayed = false
		c.ln.pending--
	}
}

// OnDiscard implements tcpserv.ConnHandle. The kernel gives no notification
// for a connection reset while it sits unclaimed, so the callback is
// accepted but never fired; a reset surfaces as an error on first read
// instead.
func (c *conn) OnDiscard(func()) {}

// Read implements tcpserv.ConnHandle. It never blocks: 0 bytes with a nil
// error means nothing is buffered.
func (c *conn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, errorx.ErrHandleClosed
	}
	n, err := unix.Read(c.fd, p)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		return 0, os.NewSyscallError("read", err)
	}
	// A zero-length read on a readable socket means the peer finished.
	if n <= 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements tcpserv.ConnHandle.
func (c *conn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, errorx.ErrHandleClosed
	}
	n, err := unix.Write(c.fd, p)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		return 0, os.NewSyscallError("write", err)
	}
	return n, nil
}

// Close implements tcpserv.ConnHandle. A still-delayed backlog slot is
// released so an unserviceable connection cannot pin the listener's backlog.
func (c *conn) Close() error {
	c.stack.mu.Lock()
	if c.closed {
		c.stack.mu.Unlock()
		return nil
	}
	c.closed = true
	c.BacklogAccepted()
	c.stack.mu.Unlock()
	return os.NewSyscallError("close", unix.Close(c.fd))
}
