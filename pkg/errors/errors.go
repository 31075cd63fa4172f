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

// Package errors defines common errors for tcpserv.
package errors

import "errors"

var (
	// ErrZeroBacklog occurs when Begin is called with a backlog capacity of zero,
	// which means "do not listen": the listener is left in the closed state.
	ErrZeroBacklog = errors.New("tcpserv: zero backlog requested, listener left closed")
	// ErrHandleAllocation occurs when the underlying stack cannot allocate a new
	// protocol control block.
	ErrHandleAllocation = errors.New("tcpserv: stack failed to allocate a handle")
	// ErrAddressInUse occurs when binding the listening handle to a port that is
	// already taken.
	ErrAddressInUse = errors.New("tcpserv: address already in use")
	// ErrResourceExhausted occurs when the stack runs out of resources while
	// switching a bound handle into the listening state.
	ErrResourceExhausted = errors.New("tcpserv: stack resources exhausted")
	// ErrListenerClosed occurs when an operation requires a listening handle but
	// the listener is in the closed state.
	ErrListenerClosed = errors.New("tcpserv: listener is closed")
	// ErrStackRequired occurs when a Server is constructed without an underlying stack.
	ErrStackRequired = errors.New("tcpserv: an underlying stack is required")
	// ErrInvalidAddress occurs when binding to an address the stack does not own.
	ErrInvalidAddress = errors.New("tcpserv: invalid local address")
	// ErrHandleClosed occurs when reading from or writing to a connection handle
	// whose peer is gone or that has been closed locally.
	ErrHandleClosed = errors.New("tcpserv: connection handle is closed")
	// ErrUnsupportedPlatform occurs when running the kernel-socket stack on an
	// unsupported platform.
	ErrUnsupportedPlatform = errors.New("tcpserv: unsupported platform in netstack")
)
