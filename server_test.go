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

package tcpserv_test

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/embnet/tcpserv"
	"github.com/embnet/tcpserv/memstack"
	errorx "github.com/embnet/tcpserv/pkg/errors"
)

func newTestServer(t *testing.T, opts ...tcpserv.Option) (*memstack.Stack, *tcpserv.Server) {
	t.Helper()
	stack := memstack.New()
	srv := tcpserv.NewServer(stack, opts...)
	t.Cleanup(srv.Close)
	return stack, srv
}

func TestBeginTypedErrors(t *testing.T) {
	t.Run("nil-stack", func(t *testing.T) {
		srv := tcpserv.NewServer(nil)
		require.ErrorIs(t, srv.BeginOn(7000), errorx.ErrStackRequired)
	})

	t.Run("zero-backlog-is-a-no-op", func(t *testing.T) {
		stack, srv := newTestServer(t)
		require.ErrorIs(t, srv.BeginWithBacklog(7000, 0), errorx.ErrZeroBacklog)
		assert.Equal(t, tcpserv.StateClosed, srv.Status())
		assert.False(t, srv.HasClient())
		_, err := stack.Dial(7000)
		assert.ErrorIs(t, err, memstack.ErrConnectionRefused)
	})

	t.Run("address-in-use", func(t *testing.T) {
		stack, srv := newTestServer(t)
		require.NoError(t, srv.BeginOn(7000))

		other := tcpserv.NewServer(stack)
		require.ErrorIs(t, other.BeginOn(7000), errorx.ErrAddressInUse)
		assert.Equal(t, tcpserv.StateClosed, other.Status())
		// The first listener is unaffected.
		assert.Equal(t, tcpserv.StateListen, srv.Status())
	})

	t.Run("resource-exhaustion", func(t *testing.T) {
		stack := memstack.New()
		for i := 0; i < memstack.DefaultMaxListeners; i++ {
			srv := tcpserv.NewServer(stack)
			require.NoError(t, srv.BeginOn(uint16(8000+i)))
			t.Cleanup(srv.Close)
		}
		extra := tcpserv.NewServer(stack)
		require.ErrorIs(t, extra.BeginOn(9000), errorx.ErrResourceExhausted)
	})
}

func TestBeginReusesConfiguredPort(t *testing.T) {
	stack, srv := newTestServer(t, tcpserv.WithPort(7100), tcpserv.WithBacklog(2))
	require.NoError(t, srv.Begin())
	assert.EqualValues(t, 7100, srv.Port())

	// Begin again rebinds the same port after closing the old handle.
	require.NoError(t, srv.Begin())
	assert.EqualValues(t, 7100, srv.Port())
	_, err := stack.Dial(7100)
	require.NoError(t, err)
}

func TestEphemeralPortResolution(t *testing.T) {
	stack, srv := newTestServer(t, tcpserv.WithPort(0))
	require.NoError(t, srv.Begin())
	port := srv.Port()
	require.NotZero(t, port, "port 0 should resolve to a stack-assigned port")

	_, err := stack.Dial(port)
	require.NoError(t, err)
	assert.True(t, srv.HasClient())
}

func TestFIFOOrdering(t *testing.T) {
	stack, srv := newTestServer(t)
	require.NoError(t, srv.BeginOn(7000))

	payloads := []string{"first", "second", "third"}
	for _, p := range payloads {
		peer, err := stack.Dial(7000)
		require.NoError(t, err)
		_, err = peer.Write([]byte(p))
		require.NoError(t, err)
	}

	for _, want := range payloads {
		c := srv.Accept()
		require.NotNil(t, c)
		buf := make([]byte, 16)
		n, err := c.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, want, string(buf[:n]))
	}
	assert.Nil(t, srv.Accept())
}

func TestPeekAheadReadReadiness(t *testing.T) {
	stack, srv := newTestServer(t)
	require.NoError(t, srv.BeginOn(7000))

	_, err := stack.Dial(7000) // first in line, nothing buffered
	require.NoError(t, err)
	p2, err := stack.Dial(7000)
	require.NoError(t, err)
	_, err = p2.Write([]byte("hello"))
	require.NoError(t, err)

	// HasClientData looks past the empty head...
	assert.Equal(t, 5, srv.HasClientData())

	// ...while Accept stays strictly FIFO.
	c1 := srv.Accept()
	require.NotNil(t, c1)
	assert.Zero(t, c1.BufferedBytes())
	c2 := srv.Accept()
	require.NotNil(t, c2)
	assert.Equal(t, 5, c2.BufferedBytes())

	assert.Zero(t, srv.HasClientData())
}

func TestBacklogCap(t *testing.T) {
	const backlog = 3
	stack, srv := newTestServer(t)
	require.NoError(t, srv.BeginWithBacklog(7000, backlog))

	for i := 0; i < backlog; i++ {
		_, err := stack.Dial(7000)
		require.NoError(t, err)
	}
	assert.True(t, srv.HasMaxPendingClients())

	// A connection beyond the cap is still queued, never silently dropped.
	_, err := stack.Dial(7000)
	require.NoError(t, err)
	assert.True(t, srv.HasMaxPendingClients())

	// Claiming drains the unacknowledged slots one by one.
	for i := 0; i < backlog+1; i++ {
		require.NotNil(t, srv.Accept(), "connection %d", i)
	}
	assert.False(t, srv.HasMaxPendingClients())
	assert.False(t, srv.HasClient())
}

func TestOwnershipSingleTransfer(t *testing.T) {
	stack, srv := newTestServer(t)
	require.NoError(t, srv.BeginOn(7000))

	for i := 0; i < 2; i++ {
		_, err := stack.Dial(7000)
		require.NoError(t, err)
	}

	c := srv.Accept()
	require.NotNil(t, c)
	assert.True(t, srv.HasClient(), "second connection still queued")
	require.NotNil(t, srv.Accept())
	assert.False(t, srv.HasClient(), "queue forgot both claimed connections")
	assert.Nil(t, srv.Accept())
}

func TestIdempotentClose(t *testing.T) {
	t.Run("never-opened", func(t *testing.T) {
		_, srv := newTestServer(t)
		srv.Close()
		srv.Close()
		assert.Equal(t, tcpserv.StateClosed, srv.Status())
	})

	t.Run("after-listening", func(t *testing.T) {
		stack, srv := newTestServer(t)
		require.NoError(t, srv.BeginOn(7000))
		_, err := stack.Dial(7000)
		require.NoError(t, err)

		srv.Close()
		srv.Stop()
		assert.Equal(t, tcpserv.StateClosed, srv.Status())
		assert.False(t, srv.HasClient(), "pending connections dropped on close")
		_, err = stack.Dial(7000)
		assert.ErrorIs(t, err, memstack.ErrConnectionRefused)
	})
}

func TestDiscardRemovesQueuedConnection(t *testing.T) {
	stack, srv := newTestServer(t)
	require.NoError(t, srv.BeginWithBacklog(7000, 2))

	peer, err := stack.Dial(7000)
	require.NoError(t, err)
	require.True(t, srv.HasClient())

	peer.Reset()
	assert.False(t, srv.HasClient(), "reset connection unlinked from the queue")
	assert.Nil(t, srv.Accept())
	assert.False(t, srv.HasMaxPendingClients())

	// The released slot is usable again.
	_, err = stack.Dial(7000)
	require.NoError(t, err)
	require.NotNil(t, srv.Accept())
}

func TestPeerClosedBeforeClaim(t *testing.T) {
	stack, srv := newTestServer(t)
	require.NoError(t, srv.BeginOn(7000))

	peer, err := stack.Dial(7000)
	require.NoError(t, err)
	_, err = peer.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	// A graceful close keeps buffered data claimable and readable.
	c := srv.Accept()
	require.NotNil(t, c)
	assert.Equal(t, tcpserv.StateCloseWait, c.Status())

	buf := make([]byte, 8)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(buf[:n]))
	_, err = c.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNoDelayTriState(t *testing.T) {
	t.Run("unset-falls-back-to-default", func(t *testing.T) {
		_, srv := newTestServer(t)
		assert.False(t, srv.NoDelay())

		_, srvOn := newTestServer(t, tcpserv.WithDefaultNoDelay(true))
		assert.True(t, srvOn.NoDelay())
	})

	t.Run("forced-overrides-default", func(t *testing.T) {
		_, srv := newTestServer(t, tcpserv.WithDefaultNoDelay(true))
		srv.SetNoDelay(false)
		assert.False(t, srv.NoDelay())
		srv.SetNoDelay(true)
		assert.True(t, srv.NoDelay())
	})

	t.Run("option-preconfigures-policy", func(t *testing.T) {
		_, srv := newTestServer(t, tcpserv.WithNoDelay(tcpserv.NoDelayOn))
		assert.True(t, srv.NoDelay())
	})
}

func TestAvailableAlias(t *testing.T) {
	stack, srv := newTestServer(t)
	require.NoError(t, srv.BeginOn(7000))
	_, err := stack.Dial(7000)
	require.NoError(t, err)

	var status uint8
	c := srv.Available(&status)
	require.NotNil(t, c)
	assert.Nil(t, srv.Available(nil))
}

func TestConcurrentDialAndDrain(t *testing.T) {
	const clients = 64
	stack, srv := newTestServer(t)
	require.NoError(t, srv.BeginWithBacklog(7000, clients))

	var g errgroup.Group
	for i := 0; i < clients; i++ {
		g.Go(func() error {
			_, err := stack.Dial(7000)
			return err
		})
	}

	claimed := 0
	deadline := time.Now().Add(5 * time.Second)
	for claimed < clients && time.Now().Before(deadline) {
		if c := srv.Accept(); c != nil {
			claimed++
			continue
		}
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, clients, claimed)
	assert.False(t, srv.HasClient())
}
