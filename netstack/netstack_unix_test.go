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

package netstack_test

import (
	"fmt"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embnet/tcpserv"
	"github.com/embnet/tcpserv/netstack"
	errorx "github.com/embnet/tcpserv/pkg/errors"
)

func TestServerOverKernelSockets(t *testing.T) {
	stack := netstack.New()
	srv := tcpserv.NewServer(stack,
		tcpserv.WithAddr(netip.MustParseAddr("127.0.0.1")),
		tcpserv.WithPort(0),
		tcpserv.WithBacklog(4),
	)
	require.NoError(t, srv.Begin())
	defer srv.Close()

	port := srv.Port()
	require.NotZero(t, port, "ephemeral port resolved")
	assert.Equal(t, tcpserv.StateListen, srv.Status())

	peer, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer peer.Close()
	_, err = peer.Write([]byte("hello"))
	require.NoError(t, err)

	var c *tcpserv.Client
	require.Eventually(t, func() bool {
		stack.Poll()
		c = srv.Accept()
		return c != nil
	}, 2*time.Second, 5*time.Millisecond, "connection claimed after polling")

	// The kernel buffered the bytes sent before the claim.
	require.Eventually(t, func() bool {
		return c.BufferedBytes() == 5
	}, 2*time.Second, 5*time.Millisecond)

	buf := make([]byte, 8)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = c.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err = peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	require.NoError(t, c.Close())
}

func TestBindErrors(t *testing.T) {
	t.Run("address-in-use", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		port := uint16(ln.Addr().(*net.TCPAddr).Port)

		srv := tcpserv.NewServer(netstack.New(), tcpserv.WithAddr(netip.MustParseAddr("127.0.0.1")))
		require.ErrorIs(t, srv.BeginOn(port), errorx.ErrAddressInUse)
		assert.Equal(t, tcpserv.StateClosed, srv.Status())
	})

	t.Run("invalid-address", func(t *testing.T) {
		srv := tcpserv.NewServer(netstack.New(), tcpserv.WithAddr(netip.MustParseAddr("2001:db8::1")))
		require.ErrorIs(t, srv.BeginOn(0), errorx.ErrInvalidAddress)
	})
}

func TestPollHonorsDelayedBacklog(t *testing.T) {
	const backlog = 2
	stack := netstack.New()
	srv := tcpserv.NewServer(stack, tcpserv.WithAddr(netip.MustParseAddr("127.0.0.1")))
	require.NoError(t, srv.BeginWithBacklog(0, backlog))
	defer srv.Close()

	var peers []net.Conn
	defer func() {
		for _, p := range peers {
			_ = p.Close()
		}
	}()
	for i := 0; i < backlog+2; i++ {
		p, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
		require.NoError(t, err)
		peers = append(peers, p)
	}

	// Poll claims connections from the kernel only up to the configured
	// backlog; the rest wait in the kernel queue.
	require.Eventually(t, func() bool {
		stack.Poll()
		return srv.HasMaxPendingClients()
	}, 2*time.Second, 5*time.Millisecond)
	stack.Poll()
	assert.True(t, srv.HasMaxPendingClients())

	// Draining frees slots and lets Poll pull the remainder in.
	claimed := 0
	require.Eventually(t, func() bool {
		stack.Poll()
		for srv.Accept() != nil {
			claimed++
		}
		return claimed == backlog+2
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, srv.HasMaxPendingClients())
}
