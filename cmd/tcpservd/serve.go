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

package main

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/embnet/tcpserv"
	"github.com/embnet/tcpserv/netstack"
	"github.com/embnet/tcpserv/pkg/logging"
	"github.com/embnet/tcpserv/pkg/pool/goroutine"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the echo daemon",
	Long: `Start the echo daemon, For example:
  tcpservd serve --port=7000 --backlog=8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var (
	servePort    uint16
	serveBacklog int
	serveNoDelay bool
	pollEvery    time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.Uint16VarP(&servePort, "port", "p", 7000, "port to listen on, 0 for an ephemeral one")
	flags.IntVarP(&serveBacklog, "backlog", "b", tcpserv.DefaultBacklog, "accepted-but-unclaimed connection cap")
	flags.BoolVar(&serveNoDelay, "nodelay", false, "disable send-coalescing on accepted connections")
	flags.DurationVar(&pollEvery, "poll-interval", 5*time.Millisecond, "accept-queue polling interval")
	_ = viper.BindPFlags(flags)
}

func serve() error {
	stack := netstack.New()
	srv := tcpserv.NewServer(stack,
		tcpserv.WithPort(servePort),
		tcpserv.WithBacklog(serveBacklog),
		tcpserv.WithDefaultNoDelay(serveNoDelay),
	)
	if err := srv.Begin(); err != nil {
		return err
	}
	defer srv.Close()
	logging.Infof("tcpservd echoing on port %d, backlog %d", srv.Port(), serveBacklog)

	pool := goroutine.Default()
	defer pool.Release()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logging.Infof("received %s, shutting down", sig)
			return nil
		case <-ticker.C:
			stack.Poll()
			if srv.HasMaxPendingClients() {
				logging.Warnf("accept backlog full, %d unclaimed connections", serveBacklog)
			}
			for {
				c := srv.Accept()
				if c == nil {
					break
				}
				client := c
				if err := pool.Submit(func() { echo(client) }); err != nil {
					logging.Errorf("no worker for connection %s: %v", client.ID(), err)
					_ = client.Close()
				}
			}
		}
	}
}

// echo copies a client's inbound bytes straight back until the peer goes
// away. Reads never block, so idle gaps are slept through.
func echo(c *tcpserv.Client) {
	defer func() { _ = c.Close() }()
	logging.Debugf("servicing connection %s", c.ID())

	buf := make([]byte, 4096)
	for {
		n, err := c.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Debugf("connection %s read error: %v", c.ID(), err)
			}
			return
		}
		if n == 0 {
			time.Sleep(pollEvery)
			continue
		}
		if _, err = c.Write(buf[:n]); err != nil {
			logging.Debugf("connection %s write error: %v", c.ID(), err)
			return
		}
	}
}
