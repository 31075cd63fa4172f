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

/*
Package tcpserv is a server-socket façade over an embedded TCP/IP stack.

The stack does TCP; tcpserv does the queueing and ownership around it. A
Server binds a port, registers an accept callback with the stack, and keeps
every connection the stack hands it on a FIFO pending queue until the
application claims it:

	srv := tcpserv.NewServer(stack, tcpserv.WithBacklog(8))
	if err := srv.BeginOn(7000); err != nil {
		log.Fatal(err)
	}
	for {
		if c := srv.Accept(); c != nil {
			go service(c)
		}
		poll()
	}

Accept never blocks and never refuses an inbound connection: the callback
queues unconditionally so the stack can buffer inbound data before the
application gets around to claiming the connection, while a two-phase
backlog slot ("delayed" on accept, "released" on claim) caps how many
unacknowledged connections the stack will take on.

Two stack implementations ship with the module: memstack, an in-memory
loopback stack for tests and examples, and netstack, a kernel-socket stack
for hosted platforms.
*/
package tcpserv
