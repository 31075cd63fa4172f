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

	"github.com/embnet/tcpserv/pkg/logging"
)

// DefaultBacklog is the backlog capacity used when Begin is called without
// an explicit one: the maximum number of accepted-but-unclaimed connections
// counted against the listener before HasMaxPendingClients reports true.
const DefaultBacklog = 5

// NoDelayMode is the tri-state no-delay policy applied to accepted
// connections. When unset it falls back to the default configured on the
// Server, not to ambient process-wide state.
type NoDelayMode int

const (
	// NoDelayUnset inherits the Server's configured default.
	NoDelayUnset NoDelayMode = iota
	// NoDelayOn forces send-coalescing off on accepted connections.
	NoDelayOn
	// NoDelayOff forces send-coalescing on (Nagle enabled).
	NoDelayOff
)

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := new(Options)
	for _, option := range options {
		option(opts)
	}
	return opts
}

// Options are configurations set when the server starts.
type Options struct {
	// Addr is the local address to bind; the zero value binds the wildcard
	// address.
	Addr netip.Addr

	// Port is the port Begin listens on when called without one. Port 0
	// requests an ephemeral port from the stack.
	Port uint16

	// Backlog is the backlog capacity used by Begin, defaulting to
	// DefaultBacklog when non-positive.
	Backlog int

	// NoDelay is the tri-state no-delay policy applied to accepted
	// connections.
	NoDelay NoDelayMode

	// DefaultNoDelay is what a NoDelayUnset policy resolves to.
	DefaultNoDelay bool

	// Logger is the customized logger for logging info, if it is not set,
	// then tcpserv will use the default logger powered by zap.
	Logger logging.Logger
}

// WithOptions sets up all options.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithAddr sets up the local address to bind.
func WithAddr(addr netip.Addr) Option {
	return func(opts *Options) {
		opts.Addr = addr
	}
}

// WithPort sets up the port Begin listens on.
func WithPort(port uint16) Option {
	return func(opts *Options) {
		opts.Port = port
	}
}

// WithBacklog sets up the backlog capacity used by Begin.
func WithBacklog(backlog int) Option {
	return func(opts *Options) {
		opts.Backlog = backlog
	}
}

// WithNoDelay sets up the tri-state no-delay policy for accepted connections.
func WithNoDelay(mode NoDelayMode) Option {
	return func(opts *Options) {
		opts.NoDelay = mode
	}
}

// WithDefaultNoDelay sets up what an unset no-delay policy resolves to.
func WithDefaultNoDelay(noDelay bool) Option {
	return func(opts *Options) {
		opts.DefaultNoDelay = noDelay
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}
