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
	"github.com/google/uuid"

	errorx "github.com/embnet/tcpserv/pkg/errors"
)

// Client is the connection context wrapping one accepted handle. The accept
// callback creates it; it lives on the pending queue until the application
// claims it through Server.Accept, at which point ownership transfers wholly
// to the caller and the queue forgets it. Reading, writing and closing the
// connection are then the caller's job alone.
//
// A Client is owned by exactly one of the pending queue or the application
// at any time, never both.
type Client struct {
	id   uuid.UUID
	h    ConnHandle
	next *Client // intrusive pending-queue link, not an ownership edge
}

func newClient(h ConnHandle) *Client {
	return &Client{id: uuid.New(), h: h}
}

// ID returns the identifier assigned to the connection when it was accepted,
// stable across the queue hand-off and useful for correlating logs.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Handle exposes the underlying per-connection handle. It is nil once the
// stack has torn the connection down, e.g. when the peer closed it while the
// client was still queued.
func (c *Client) Handle() ConnHandle {
	return c.h
}

// Status returns the connection-state code, StateClosed when the handle is
// already gone.
func (c *Client) Status() State {
	if c.h == nil {
		return StateClosed
	}
	return c.h.State()
}

// BufferedBytes reports how much inbound data the stack has buffered for
// this connection, 0 when the handle is gone.
func (c *Client) BufferedBytes() int {
	if c.h == nil {
		return 0
	}
	return c.h.BufferedBytes()
}

// SetNoDelay toggles send-coalescing on the connection. No-op when the
// handle is gone.
func (c *Client) SetNoDelay(noDelay bool) {
	if c.h != nil {
		c.h.SetNoDelay(noDelay)
	}
}

// Read copies buffered inbound data into p.
func (c *Client) Read(p []byte) (int, error) {
	if c.h == nil {
		return 0, errorx.ErrHandleClosed
	}
	return c.h.Read(p)
}

// Write queues p for transmission to the peer.
func (c *Client) Write(p []byte) (int, error) {
	if c.h == nil {
		return 0, errorx.ErrHandleClosed
	}
	return c.h.Write(p)
}

// Close closes the connection. Safe to call when the handle is already gone.
func (c *Client) Close() error {
	if c.h == nil {
		return nil
	}
	err := c.h.Close()
	c.h = nil
	return err
}

// detach drops the handle reference after a stack-initiated teardown.
func (c *Client) detach() {
	c.h = nil
}
