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

//go:build !linux && !freebsd && !dragonfly && !darwin

package netstack

import (
	"sync"

	"github.com/embnet/tcpserv"
	errorx "github.com/embnet/tcpserv/pkg/errors"
)

// Stack is a placeholder on platforms without kernel-socket support.
type Stack struct {
	mu sync.Mutex
}

// New creates a kernel-socket stack.
func New() *Stack {
	return new(Stack)
}

// Guard implements tcpserv.Stack.
func (s *Stack) Guard() sync.Locker {
	return &s.mu
}

// NewHandle implements tcpserv.Stack.
func (s *Stack) NewHandle() (tcpserv.Handle, error) {
	return nil, errorx.ErrUnsupportedPlatform
}

// Poll is a no-op on unsupported platforms.
func (s *Stack) Poll() {}
